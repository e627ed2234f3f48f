// Package responselog records the latest regulator call per submission and
// endpoint. It is an audit trail for operators, never read by business logic.
package responselog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/ssn-filing/filing"
)

type Log struct {
	store  filing.ResponseStore
	logger *logrus.Logger
	now    func() time.Time
}

func New(store filing.ResponseStore, logger *logrus.Logger) *Log {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Log{store: store, logger: logger, now: time.Now}
}

// WithClock overrides the timestamp source.
func (l *Log) WithClock(now func() time.Time) *Log {
	l.now = now
	return l
}

// Record upserts the (submission, endpoint) row. A resend overwrites the
// previous attempt; the original CreatedAt is kept by the store.
func (l *Log) Record(ctx context.Context, id filing.SubmissionID, endpoint string, payload any, body map[string]any, status int) error {
	if len(endpoint) > filing.MaxEndpointLength {
		endpoint = endpoint[:filing.MaxEndpointLength]
	}
	reqJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	respJSON, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	now := l.now()
	created, err := l.store.UpsertResponse(ctx, filing.Response{
		SubmissionID: id,
		Endpoint:     endpoint,
		Payload:      reqJSON,
		Body:         respJSON,
		Status:       status,
		IsError:      status >= 400,
		Timestamps:   filing.Timestamps{CreatedAt: now, UpdatedAt: now},
	})
	if err != nil {
		return fmt.Errorf("upsert response %s/%s: %w", id, endpoint, err)
	}

	action := "updated"
	if created {
		action = "created"
	}
	l.logger.WithFields(logrus.Fields{
		"module":     "responselog",
		"submission": id,
		"endpoint":   endpoint,
		"status":     status,
	}).Infof("response log %s", action)
	return nil
}

// List returns the log rows of one submission.
func (l *Log) List(ctx context.Context, id filing.SubmissionID) ([]filing.Response, error) {
	return l.store.ListResponses(ctx, id)
}
