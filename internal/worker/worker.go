// Package worker receives translation jobs over NATS request/reply and runs them
// through the pipeline.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/translation-service/internal/core"
	"github.com/nats-io/nats.go"
)

const (
	// DefaultJobTimeout bounds one job when Config.JobTimeout is unset.
	DefaultJobTimeout = 10 * time.Minute

	drainPollInterval = 50 * time.Millisecond
)

var (
	// ErrConnectionRequired indicates that no NATS connection was given.
	ErrConnectionRequired = errors.New("nats connection is required")
	// ErrSubjectPrefixEmpty indicates that the job subject prefix is empty.
	ErrSubjectPrefixEmpty = errors.New("job subject prefix cannot be empty")
	// ErrNoDirections indicates that the runner serves no direction.
	ErrNoDirections = errors.New("at least one direction is required")
	// ErrMalformedRequest is reported when a request body is not a job descriptor.
	ErrMalformedRequest = errors.New("malformed job request")
)

// Runner executes one job. *pipeline.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, direction core.Direction, job core.JobDescriptor) (core.Result, error)
	Directions() []core.Direction
}

// ErrorReply is sent instead of a core.Result when a job fails.
type ErrorReply struct {
	Code   int    `json:"code"`
	Kind   string `json:"kind,omitempty"`
	Detail string `json:"detail"`
	JobID  string `json:"messageId,omitempty"`
}

// Config holds the worker's transport settings.
type Config struct {
	SubjectPrefix     string
	QueueGroup        string
	MaxConcurrentJobs int
	JobTimeout        time.Duration
}

// Subject returns the request subject of direction.
func Subject(prefix string, direction core.Direction) string {
	return strings.TrimSuffix(prefix, ".") + "." + string(direction)
}

// NatsWorker listens for jobs on one subject per direction.
type NatsWorker struct {
	natsConnection *nats.Conn
	runner         Runner
	cfg            Config
	slots          chan struct{}
	log            *logger.Logger
}

// NewNatsWorker creates a worker serving every direction of runner.
func NewNatsWorker(natsConnection *nats.Conn, runner Runner, cfg Config, log *logger.Logger) (*NatsWorker, error) {
	if natsConnection == nil {
		return nil, ErrConnectionRequired
	}

	if strings.TrimSpace(cfg.SubjectPrefix) == "" {
		return nil, ErrSubjectPrefixEmpty
	}

	if len(runner.Directions()) == 0 {
		return nil, ErrNoDirections
	}

	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 1
	}

	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = DefaultJobTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		runner:         runner,
		cfg:            cfg,
		slots:          make(chan struct{}, cfg.MaxConcurrentJobs),
		log:            log,
	}, nil
}

// Run subscribes and blocks until ctx is done. On shutdown the subscriptions are
// drained and in-flight jobs are allowed to finish.
func (w *NatsWorker) Run(ctx context.Context) error {
	subscriptions := make([]*nats.Subscription, 0, len(w.runner.Directions()))

	for _, direction := range w.runner.Directions() {
		subject := Subject(w.cfg.SubjectPrefix, direction)

		sub, err := w.natsConnection.QueueSubscribe(subject, w.cfg.QueueGroup, w.handler(direction))
		if err != nil {
			w.unsubscribe(subscriptions)

			return fmt.Errorf("failed to subscribe to subject %s: %w", subject, err)
		}

		subscriptions = append(subscriptions, sub)
		w.log.Info("Listening for %s jobs on '%s' (queue '%s')", direction, subject, w.cfg.QueueGroup)
	}

	<-ctx.Done()

	var drainErr error

	for _, sub := range subscriptions {
		err := sub.Drain()
		if err != nil {
			drainErr = errors.Join(drainErr, fmt.Errorf("failed to drain subscription %s: %w", sub.Subject, err))
		}
	}

	for _, sub := range subscriptions {
		waitDrained(sub)
	}

	w.waitIdle()

	return drainErr
}

func (w *NatsWorker) handler(direction core.Direction) nats.MsgHandler {
	return func(msg *nats.Msg) {
		w.slots <- struct{}{}

		go func() {
			defer func() { <-w.slots }()

			w.handleMessage(direction, msg)
		}()
	}
}

func (w *NatsWorker) handleMessage(direction core.Direction, msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.JobTimeout)
	defer cancel()

	var job core.JobDescriptor

	err := json.Unmarshal(msg.Data, &job)
	if err != nil {
		w.log.Error("Failed to decode job on '%s': %v", msg.Subject, err)
		w.reply(msg, ErrorReply{
			Code:   http.StatusUnprocessableEntity,
			Detail: fmt.Errorf("%w: %w", ErrMalformedRequest, err).Error(),
		})

		return
	}

	result, err := w.runner.Run(ctx, direction, job)
	if err != nil {
		w.reply(msg, errorReply(job.JobID, err))

		return
	}

	w.reply(msg, result)
}

func errorReply(jobID string, err error) ErrorReply {
	code := http.StatusInternalServerError
	if core.IsClientFault(err) {
		code = http.StatusUnprocessableEntity
	}

	kind := core.KindOf(err)
	if errors.Is(err, core.ErrInvalidJob) {
		kind = ""
	}

	return ErrorReply{Code: code, Kind: string(kind), Detail: err.Error(), JobID: jobID}
}

func (w *NatsWorker) reply(msg *nats.Msg, payload any) {
	if msg.Reply == "" {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		w.log.Error("Failed to marshal reply on '%s': %v", msg.Subject, err)

		return
	}

	err = msg.Respond(data)
	if err != nil {
		w.log.Error("Failed to publish reply on '%s': %v", msg.Subject, err)
	}
}

func (w *NatsWorker) unsubscribe(subscriptions []*nats.Subscription) {
	for _, sub := range subscriptions {
		err := sub.Unsubscribe()
		if err != nil {
			w.log.Warn("Failed to unsubscribe from %s: %v", sub.Subject, err)
		}
	}
}

// waitDrained returns once every pending message of sub has been handed to its handler.
func waitDrained(sub *nats.Subscription) {
	for sub.IsValid() {
		time.Sleep(drainPollInterval)
	}
}

// waitIdle holds every slot, which is only possible once no job is running.
func (w *NatsWorker) waitIdle() {
	for range cap(w.slots) {
		w.slots <- struct{}{}
	}

	for range cap(w.slots) {
		<-w.slots
	}
}
