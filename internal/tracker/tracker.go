// Package tracker records job status transitions and announces them on NATS.
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/translation-service/internal/core"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Default per-call deadlines.
const (
	DefaultStatusTimeout = 15 * time.Second
	DefaultResultTimeout = 30 * time.Second
)

// StatusChangedEvent is published after every successful record update.
type StatusChangedEvent struct {
	Header         events.EventHeader `json:"header"`
	JobID          string             `json:"messageId"`
	Status         core.JobStatus     `json:"status"`
	AudioReference string             `json:"translated_audio_url,omitempty"`
}

// Announcer broadcasts status changes to interested listeners.
type Announcer interface {
	Announce(event StatusChangedEvent) error
}

// Ack reports the outcome of a best-effort status write. Callers may ignore it.
type Ack struct {
	Err      error
	Duration time.Duration
}

// OK reports whether the write succeeded.
func (a Ack) OK() bool {
	return a.Err == nil
}

// Tracker writes job state to the system of record.
type Tracker struct {
	store         core.RecordStore
	announcer     Announcer
	statusTimeout time.Duration
	resultTimeout time.Duration
	log           *logger.Logger
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithAnnouncer publishes every recorded change through announcer.
func WithAnnouncer(announcer Announcer) Option {
	return func(t *Tracker) {
		t.announcer = announcer
	}
}

// WithTimeouts overrides the status and result deadlines.
func WithTimeouts(status, result time.Duration) Option {
	return func(t *Tracker) {
		if status > 0 {
			t.statusTimeout = status
		}

		if result > 0 {
			t.resultTimeout = result
		}
	}
}

// New creates a Tracker over store.
func New(store core.RecordStore, log *logger.Logger, opts ...Option) *Tracker {
	tracker := &Tracker{
		store:         store,
		statusTimeout: DefaultStatusTimeout,
		resultTimeout: DefaultResultTimeout,
		log:           log,
	}

	for _, opt := range opts {
		opt(tracker)
	}

	return tracker
}

// SetStatus writes status for jobID. It never fails the caller: errors are logged and
// returned inside the Ack. The write survives cancellation of ctx so a failed status
// can still be recorded after a job deadline.
func (t *Tracker) SetStatus(ctx context.Context, jobID string, status core.JobStatus) Ack {
	started := time.Now()

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.statusTimeout)
	defer cancel()

	err := t.store.UpdateStatus(writeCtx, jobID, status)
	ack := Ack{Err: err, Duration: time.Since(started)}

	if err != nil {
		t.log.Warn("Failed to set status '%s' for job %s: %v", status, jobID, err)

		return ack
	}

	t.announce(StatusChangedEvent{JobID: jobID, Status: status})

	return ack
}

// RecordResult writes the final text, audio reference and status in one update.
func (t *Tracker) RecordResult(ctx context.Context, jobID, translatedText, audioReference string, status core.JobStatus) error {
	writeCtx, cancel := context.WithTimeout(ctx, t.resultTimeout)
	defer cancel()

	err := t.store.UpdateResult(writeCtx, jobID, translatedText, audioReference, status)
	if err != nil {
		return core.NewError(core.KindPersistence, "failed to record result for job "+jobID, err)
	}

	t.announce(StatusChangedEvent{JobID: jobID, Status: status, AudioReference: audioReference})

	return nil
}

func (t *Tracker) announce(event StatusChangedEvent) {
	if t.announcer == nil {
		return
	}

	event.Header = events.EventHeader{
		Timestamp:  time.Now().UTC(),
		WorkflowID: event.JobID,
		EventID:    uuid.NewString(),
	}

	err := t.announcer.Announce(event)
	if err != nil {
		t.log.Warn("Failed to announce status '%s' for job %s: %v", event.Status, event.JobID, err)
	}
}

// NatsAnnouncer publishes StatusChangedEvent JSON on "{prefix}.{jobId}".
type NatsAnnouncer struct {
	natsConnection *nats.Conn
	prefix         string
}

// NewNatsAnnouncer creates an announcer on natsConnection.
func NewNatsAnnouncer(natsConnection *nats.Conn, prefix string) *NatsAnnouncer {
	return &NatsAnnouncer{natsConnection: natsConnection, prefix: strings.TrimSuffix(prefix, ".")}
}

// Announce publishes event. Delivery is fire-and-forget.
func (a *NatsAnnouncer) Announce(event StatusChangedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal status event: %w", err)
	}

	err = a.natsConnection.Publish(Subject(a.prefix, event.JobID), data)
	if err != nil {
		return fmt.Errorf("failed to publish status event: %w", err)
	}

	return nil
}

var subjectTokenReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")

// Subject returns the status subject for jobID. Characters with meaning in NATS
// subjects are replaced so a job id is always a single token.
func Subject(prefix, jobID string) string {
	return prefix + "." + subjectTokenReplacer.Replace(jobID)
}
