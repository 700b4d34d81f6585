package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mdawoud27/job-search-app-sub000/internal/apperr"
	"github.com/mdawoud27/job-search-app-sub000/internal/models"
)

type stubNotifier struct {
	calls int
	fails int
	err   error
	got   models.ApplicationCreated
}

func (s *stubNotifier) NewApplication(_ context.Context, evt models.ApplicationCreated) (int, error) {
	s.calls++
	s.got = evt
	if s.calls <= s.fails {
		return 0, s.err
	}
	return 1, nil
}

func consumerWith(n ApplicationNotifier) *Consumer {
	return &Consumer{notifier: n, log: zap.NewNop().Sugar()}
}

func TestHandleDeliversEvent(t *testing.T) {
	n := &stubNotifier{}
	c := consumerWith(n)

	err := c.handle(context.Background(), []byte(`{"applicationId":"a1","jobId":"j1","jobTitle":"Go Dev","companyId":"c1","applicantName":"Ann","applicantEmail":"ann@x.io"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, n.calls)
	assert.Equal(t, "c1", n.got.CompanyID)
	assert.Equal(t, "Go Dev", n.got.JobTitle)
	assert.Equal(t, "ann@x.io", n.got.ApplicantEmail)
}

func TestHandleRetriesTransientErrors(t *testing.T) {
	n := &stubNotifier{fails: 2, err: errors.New("blip")}
	err := consumerWith(n).handle(context.Background(), []byte(`{"jobId":"j","companyId":"c"}`))
	require.NoError(t, err)
	assert.Equal(t, 3, n.calls)
}

func TestHandleDoesNotRetryInvalidEvents(t *testing.T) {
	n := &stubNotifier{fails: 10, err: apperr.Validation("companyId and jobId are required")}
	err := consumerWith(n).handle(context.Background(), []byte(`{}`))
	require.Error(t, err)
	assert.Equal(t, 1, n.calls)
}

func TestHandleRejectsGarbage(t *testing.T) {
	n := &stubNotifier{}
	err := consumerWith(n).handle(context.Background(), []byte(`nope`))
	assert.Error(t, err)
	assert.Zero(t, n.calls)
}
