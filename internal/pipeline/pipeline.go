// Package pipeline runs one translation job through fetch, recognition, optional
// transform, synthesis, publish and record stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/translation-service/internal/core"
	"github.com/book-expert/translation-service/internal/tempfile"
	"github.com/book-expert/translation-service/internal/tracker"
)

// Stage is one state of a run.
type Stage string

// Run states in order. A run ends in exactly one of StageCompleted or StageFailed.
const (
	StageStarted      Stage = "started"
	StageFetching     Stage = "fetching"
	StageRecognizing  Stage = "recognizing"
	StageTransforming Stage = "transforming"
	StageSynthesizing Stage = "synthesizing"
	StagePublishing   Stage = "publishing"
	StageRecording    Stage = "recording"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
)

const outputSuffix = "." + core.AudioFormatWAV

// ErrMissingDependency is returned by New when a required collaborator is nil.
var ErrMissingDependency = errors.New("missing pipeline dependency")

// Observer is told about every stage a run enters.
type Observer func(jobID string, direction core.Direction, stage Stage)

// Fetcher downloads a reference into a file owned by scope.
type Fetcher interface {
	Fetch(ctx context.Context, scope *tempfile.Scope, reference string) (string, error)
}

// StatusTracker writes job status to the system of record.
type StatusTracker interface {
	SetStatus(ctx context.Context, jobID string, status core.JobStatus) tracker.Ack
	RecordResult(ctx context.Context, jobID, translatedText, audioReference string, status core.JobStatus) error
}

// Stages holds the direction-specific adapters. A nil Transformer skips that stage.
type Stages struct {
	Recognizer  core.Recognizer
	Transformer core.Transformer
	Synthesizer core.Synthesizer
	Voice       core.VoiceConfig
}

// Dependencies are the collaborators shared by both directions.
type Dependencies struct {
	TempFiles *tempfile.Manager
	Fetcher   Fetcher
	Publisher core.Publisher
	Tracker   StatusTracker
	Stages    map[core.Direction]Stages
	Observer  Observer
}

// Pipeline runs jobs. It is safe for concurrent use; runs share no artifacts.
type Pipeline struct {
	deps Dependencies
	log  *logger.Logger
}

// New validates deps and creates a Pipeline.
func New(deps Dependencies, log *logger.Logger) (*Pipeline, error) {
	missing := make([]string, 0)

	if deps.TempFiles == nil {
		missing = append(missing, "temp files")
	}

	if deps.Fetcher == nil {
		missing = append(missing, "fetcher")
	}

	if deps.Publisher == nil {
		missing = append(missing, "publisher")
	}

	if deps.Tracker == nil {
		missing = append(missing, "tracker")
	}

	for direction, stages := range deps.Stages {
		if stages.Recognizer == nil || stages.Synthesizer == nil {
			missing = append(missing, string(direction)+" stages")
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingDependency, strings.Join(missing, ", "))
	}

	return &Pipeline{deps: deps, log: log}, nil
}

// Directions lists the directions this pipeline can run.
func (p *Pipeline) Directions() []core.Direction {
	directions := make([]core.Direction, 0, len(p.deps.Stages))

	for _, direction := range []core.Direction{core.DirectionForward, core.DirectionBackward} {
		if _, ok := p.deps.Stages[direction]; ok {
			directions = append(directions, direction)
		}
	}

	return directions
}

// Run executes job in direction. The processing status is written before any other
// status; on failure the failed status is written best-effort and the originating
// stage error is returned. Every temp file acquired by the run is released before
// Run returns.
func (p *Pipeline) Run(ctx context.Context, direction core.Direction, job core.JobDescriptor) (core.Result, error) {
	err := job.Validate()
	if err != nil {
		return core.Result{}, err
	}

	stages, ok := p.deps.Stages[direction]
	if !ok {
		return core.Result{}, fmt.Errorf("%w: %q", core.ErrUnknownDirection, direction)
	}

	scope := p.deps.TempFiles.NewScope()
	defer scope.Close()

	started := time.Now()

	p.enter(job, direction, StageStarted)
	p.deps.Tracker.SetStatus(ctx, job.JobID, core.StatusProcessing)

	result, err := p.execute(ctx, scope, direction, stages, job)
	if err != nil {
		p.enter(job, direction, StageFailed)

		ack := p.deps.Tracker.SetStatus(ctx, job.JobID, core.StatusFailed)
		p.log.Error(
			"Job %s (%s) failed after %s: %v (failed status recorded: %t)",
			job.JobID, direction, time.Since(started).Round(time.Millisecond), err, ack.OK(),
		)

		return core.Result{}, err
	}

	p.enter(job, direction, StageCompleted)
	p.log.Info("Job %s (%s) completed in %s", job.JobID, direction, time.Since(started).Round(time.Millisecond))

	return result, nil
}

func (p *Pipeline) execute(
	ctx context.Context,
	scope *tempfile.Scope,
	direction core.Direction,
	stages Stages,
	job core.JobDescriptor,
) (core.Result, error) {
	p.enter(job, direction, StageFetching)

	audioPath, err := p.deps.Fetcher.Fetch(ctx, scope, job.AudioReference)
	if err != nil {
		return core.Result{}, ensureKind(core.KindFetch, "fetch failed", err)
	}

	p.enter(job, direction, StageRecognizing)

	recognition, err := stages.Recognizer.Recognize(ctx, audioPath)
	if err != nil {
		return core.Result{}, ensureKind(core.KindRecognition, "recognition failed", err)
	}

	// Recognized text is recorded as returned; only the emptiness check ignores whitespace.
	text := recognition.Text
	if strings.TrimSpace(text) == "" {
		return core.Result{}, core.EmptySpeechError()
	}

	if stages.Transformer != nil {
		p.enter(job, direction, StageTransforming)

		text, err = stages.Transformer.Transform(ctx, text)
		if err != nil {
			return core.Result{}, ensureKind(core.KindTransform, "transform failed", err)
		}
	}

	p.enter(job, direction, StageSynthesizing)

	output, err := scope.Acquire(outputSuffix)
	if err != nil {
		return core.Result{}, core.NewError(core.KindSynthesis, "failed to allocate output file", err)
	}

	err = stages.Synthesizer.Synthesize(ctx, text, stages.Voice, output.Path())
	if err != nil {
		return core.Result{}, ensureKind(core.KindSynthesis, "synthesis failed", err)
	}

	p.enter(job, direction, StagePublishing)

	reference, err := p.deps.Publisher.Publish(ctx, output.Path(), job.JobID, job.TargetLanguage)
	if err != nil {
		return core.Result{}, ensureKind(core.KindPublish, "publish failed", err)
	}

	p.enter(job, direction, StageRecording)

	err = p.deps.Tracker.RecordResult(ctx, job.JobID, text, reference, core.StatusCompleted)
	if err != nil {
		return core.Result{}, ensureKind(core.KindPersistence, "record failed", err)
	}

	return core.Result{
		JobID:                job.JobID,
		TranslatedText:       text,
		OutputAudioReference: reference,
	}, nil
}

func (p *Pipeline) enter(job core.JobDescriptor, direction core.Direction, stage Stage) {
	if p.deps.Observer != nil {
		p.deps.Observer(job.JobID, direction, stage)
	}
}

// ensureKind keeps an existing stage error as is and tags anything else with kind.
func ensureKind(kind core.Kind, message string, err error) error {
	var stageErr *core.Error
	if errors.As(err, &stageErr) {
		return err
	}

	return core.NewError(kind, message, err)
}
