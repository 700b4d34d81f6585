package directory

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mdawoud27/job-search-app-sub000/internal/apperr"
	"github.com/mdawoud27/job-search-app-sub000/internal/models"
)

type userDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	FirstName string             `bson:"firstName"`
	LastName  string             `bson:"lastName"`
	Email     string             `bson:"email"`
	Role      string             `bson:"role"`
	Avatar    struct {
		URL string `bson:"secure_url"`
	} `bson:"profilePic"`
}

func (d userDoc) model() models.User {
	return models.User{
		ID:        d.ID.Hex(),
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Email:     d.Email,
		Role:      models.ParseRole(d.Role),
		Avatar:    d.Avatar.URL,
	}
}

type jobDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	Title     string             `bson:"jobTitle"`
	Location  string             `bson:"jobLocation"`
	CompanyID primitive.ObjectID `bson:"companyId"`
	Closed    bool               `bson:"closed"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func (d jobDoc) model() models.Job {
	return models.Job{
		ID:        d.ID.Hex(),
		Title:     d.Title,
		Location:  d.Location,
		CompanyID: d.CompanyID.Hex(),
		Closed:    d.Closed,
		CreatedAt: d.CreatedAt,
	}
}

type applicationDoc struct {
	ID     primitive.ObjectID `bson:"_id"`
	JobID  primitive.ObjectID `bson:"jobId"`
	UserID primitive.ObjectID `bson:"userId"`
	CV     struct {
		URL string `bson:"secure_url"`
	} `bson:"userCV"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"createdAt"`
}

func (d applicationDoc) model() models.Application {
	return models.Application{
		ID:        d.ID.Hex(),
		JobID:     d.JobID.Hex(),
		UserID:    d.UserID.Hex(),
		CVURL:     d.CV.URL,
		Status:    d.Status,
		CreatedAt: d.CreatedAt,
	}
}

// Mongo reads the collections written by the platform's CRUD service. All
// calls go through one circuit breaker so a struggling database fails fast
// instead of piling up blocked handlers.
type Mongo struct {
	users        *mongo.Collection
	jobs         *mongo.Collection
	companies    *mongo.Collection
	applications *mongo.Collection
	cb           *gobreaker.CircuitBreaker
	timeout      time.Duration
}

func NewMongo(db *mongo.Database, timeout time.Duration) *Mongo {
	st := gobreaker.Settings{
		Name:        "directory",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrValidation)
		},
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Mongo{
		users:        db.Collection("users"),
		jobs:         db.Collection("jobs"),
		companies:    db.Collection("companies"),
		applications: db.Collection("applications"),
		cb:           gobreaker.NewCircuitBreaker(st),
		timeout:      timeout,
	}
}

func call[T any](ctx context.Context, d *Mongo, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	v, err := d.cb.Execute(func() (interface{}, error) { return fn(ctx) })
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrValidation) {
			return zero, err
		}
		return zero, apperr.Storage(op, err)
	}
	return v.(T), nil
}

func objectID(id, what string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, apperr.NotFound(what + " not found")
	}
	return oid, nil
}

func (d *Mongo) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return call(ctx, d, "find user", func(ctx context.Context) (*models.User, error) {
		oid, err := objectID(id, "user")
		if err != nil {
			return nil, err
		}
		var doc userDoc
		err = d.users.FindOne(ctx, bson.M{"_id": oid, "deletedAt": nil}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperr.NotFound("user not found")
		}
		if err != nil {
			return nil, err
		}
		u := doc.model()
		return &u, nil
	})
}

func (d *Mongo) FindJobByID(ctx context.Context, id string) (*models.Job, error) {
	return call(ctx, d, "find job", func(ctx context.Context) (*models.Job, error) {
		return d.findJob(ctx, id)
	})
}

func (d *Mongo) findJob(ctx context.Context, id string) (*models.Job, error) {
	oid, err := objectID(id, "job")
	if err != nil {
		return nil, err
	}
	var doc jobDoc
	err = d.jobs.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("job not found")
	}
	if err != nil {
		return nil, err
	}
	j := doc.model()
	return &j, nil
}

func (d *Mongo) FindJobWithApplicants(ctx context.Context, id string, skip, limit int, sort int) (*models.JobWithApplicants, error) {
	return call(ctx, d, "find job applicants", func(ctx context.Context) (*models.JobWithApplicants, error) {
		job, err := d.findJob(ctx, id)
		if err != nil {
			return nil, err
		}
		jobOID, _ := primitive.ObjectIDFromHex(job.ID)
		filter := bson.M{"jobId": jobOID}

		total, err := d.applications.CountDocuments(ctx, filter)
		if err != nil {
			return nil, err
		}
		if sort >= 0 {
			sort = 1
		} else {
			sort = -1
		}
		opts := options.Find().
			SetSort(bson.D{{Key: "createdAt", Value: sort}}).
			SetSkip(int64(skip))
		if limit > 0 {
			opts.SetLimit(int64(limit))
		}
		apps, err := d.findApplications(ctx, filter, opts)
		if err != nil {
			return nil, err
		}

		userIDs := make([]primitive.ObjectID, 0, len(apps))
		for _, a := range apps {
			userIDs = append(userIDs, a.UserID)
		}
		users, err := d.usersByID(ctx, userIDs)
		if err != nil {
			return nil, err
		}

		out := &models.JobWithApplicants{Job: *job, Applicants: make([]models.Applicant, 0, len(apps)), Total: total}
		for _, a := range apps {
			u := users[a.UserID]
			out.Applicants = append(out.Applicants, models.Applicant{
				ApplicationID: a.ID.Hex(),
				UserID:        a.UserID.Hex(),
				Name:          u.FullName(),
				Email:         u.Email,
				CVURL:         a.CV.URL,
				Status:        a.Status,
				AppliedAt:     a.CreatedAt,
			})
		}
		return out, nil
	})
}

func (d *Mongo) FindCompanyJobs(ctx context.Context, companyID string) ([]models.Job, error) {
	return call(ctx, d, "find company jobs", func(ctx context.Context) ([]models.Job, error) {
		oid, err := objectID(companyID, "company")
		if err != nil {
			return nil, err
		}
		opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
		cur, err := d.jobs.Find(ctx, bson.M{"companyId": oid}, opts)
		if err != nil {
			return nil, err
		}
		defer cur.Close(ctx)

		out := []models.Job{}
		for cur.Next(ctx) {
			var doc jobDoc
			if err := cur.Decode(&doc); err != nil {
				return nil, err
			}
			out = append(out, doc.model())
		}
		return out, cur.Err()
	})
}

func (d *Mongo) CanManage(ctx context.Context, companyID, userID string) (bool, error) {
	return call(ctx, d, "check company membership", func(ctx context.Context) (bool, error) {
		cid, err := primitive.ObjectIDFromHex(companyID)
		if err != nil {
			return false, nil
		}
		uid, err := primitive.ObjectIDFromHex(userID)
		if err != nil {
			return false, nil
		}
		n, err := d.companies.CountDocuments(ctx, bson.M{
			"_id": cid,
			"$or": bson.A{bson.M{"createdBy": uid}, bson.M{"HRs": uid}},
		})
		if err != nil {
			return false, err
		}
		return n > 0, nil
	})
}

func (d *Mongo) FindApplicationsByUser(ctx context.Context, userID string) ([]models.Application, error) {
	return call(ctx, d, "find applications", func(ctx context.Context) ([]models.Application, error) {
		oid, err := objectID(userID, "user")
		if err != nil {
			return nil, err
		}
		opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
		docs, err := d.findApplications(ctx, bson.M{"userId": oid}, opts)
		if err != nil {
			return nil, err
		}

		jobIDs := make([]primitive.ObjectID, 0, len(docs))
		for _, a := range docs {
			jobIDs = append(jobIDs, a.JobID)
		}
		titles, err := d.jobTitles(ctx, jobIDs)
		if err != nil {
			return nil, err
		}

		out := make([]models.Application, 0, len(docs))
		for _, doc := range docs {
			a := doc.model()
			a.JobTitle = titles[doc.JobID]
			out = append(out, a)
		}
		return out, nil
	})
}

func (d *Mongo) findApplications(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]applicationDoc, error) {
	cur, err := d.applications.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []applicationDoc
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Mongo) usersByID(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.User, error) {
	out := make(map[primitive.ObjectID]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := d.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var doc userDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out[doc.ID] = doc.model()
	}
	return out, cur.Err()
}

func (d *Mongo) jobTitles(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]string, error) {
	out := make(map[primitive.ObjectID]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	opts := options.Find().SetProjection(bson.M{"jobTitle": 1})
	cur, err := d.jobs.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var doc jobDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out[doc.ID] = doc.Title
	}
	return out, cur.Err()
}
