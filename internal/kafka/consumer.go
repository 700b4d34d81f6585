package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/mdawoud27/job-search-app-sub000/internal/apperr"
	"github.com/mdawoud27/job-search-app-sub000/internal/models"
)

// ApplicationNotifier pushes a new application to the company's recruiters.
type ApplicationNotifier interface {
	NewApplication(ctx context.Context, evt models.ApplicationCreated) (int, error)
}

// Consumer reads application.created events and turns them into
// newApplication notifications.
type Consumer struct {
	reader   *kafkago.Reader
	notifier ApplicationNotifier
	log      *zap.SugaredLogger
}

func NewConsumer(brokers []string, topic, groupID string, n ApplicationNotifier, log *zap.SugaredLogger) *Consumer {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: r, notifier: n, log: log}
}

// Run blocks until ctx is cancelled. A message is committed once it was
// delivered or found to be unusable.
func (c *Consumer) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0
	bo.MaxInterval = 30 * time.Second

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			wait := bo.NextBackOff()
			c.log.Warnw("kafka fetch failed", "err", err, "retry_in", wait)
			if !sleep(ctx, wait) {
				return nil
			}
			continue
		}
		bo.Reset()

		if err := c.handle(ctx, m.Value); err != nil {
			c.log.Errorw("drop application event", "offset", m.Offset, "partition", m.Partition, "err", err)
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.log.Warnw("kafka commit failed", "offset", m.Offset, "err", err)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, value []byte) error {
	var evt models.ApplicationCreated
	if err := json.Unmarshal(value, &evt); err != nil {
		return fmt.Errorf("decode application event: %w", err)
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	return backoff.Retry(func() error {
		_, err := c.notifier.NewApplication(ctx, evt)
		if errors.Is(err, apperr.ErrValidation) {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
