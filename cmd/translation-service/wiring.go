package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/translation-service/internal/config"
	"github.com/book-expert/translation-service/internal/core"
	"github.com/book-expert/translation-service/internal/fetch"
	"github.com/book-expert/translation-service/internal/objectstore"
	"github.com/book-expert/translation-service/internal/pipeline"
	"github.com/book-expert/translation-service/internal/publish"
	"github.com/book-expert/translation-service/internal/recognize"
	"github.com/book-expert/translation-service/internal/records"
	"github.com/book-expert/translation-service/internal/synthesize"
	"github.com/book-expert/translation-service/internal/tempfile"
	"github.com/book-expert/translation-service/internal/tracker"
	"github.com/book-expert/translation-service/internal/transform"
	"github.com/nats-io/nats.go"
	"google.golang.org/genai"
)

const shutdownTimeout = 10 * time.Second

var (
	errUnknownBackend       = errors.New("unknown backend")
	errObjectStoreRequired  = errors.New("objectstore publish backend requires a JetStream object store")
	errRecordsNotConfigured = errors.New("records backend is not configured")
)

// app holds the assembled pipeline and everything that must be released on exit.
type app struct {
	pipeline *pipeline.Pipeline
	closers  []func()
}

// Close releases resources in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// builder carries shared state while backends are created.
type builder struct {
	ctx     context.Context
	cfg     *config.Config
	secrets config.Secrets
	log     *logger.Logger
	app     *app

	runtime *transform.Runtime
	gemini  *genai.Client
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

func buildApp(
	ctx context.Context,
	cfg *config.Config,
	secrets config.Secrets,
	natsConnection *nats.Conn,
	log *logger.Logger,
) (*app, error) {
	b := &builder{ctx: ctx, cfg: cfg, secrets: secrets, log: log, app: &app{}}

	store := b.objectStore(natsConnection)

	fetcher := b.fetcher(store)

	publisher, err := b.publisher(store)
	if err != nil {
		b.app.Close()

		return nil, err
	}

	recordStore, err := b.recordStore()
	if err != nil {
		b.app.Close()

		return nil, err
	}

	statusTracker := tracker.New(
		recordStore,
		log,
		tracker.WithAnnouncer(tracker.NewNatsAnnouncer(natsConnection, cfg.NATS.StatusSubjectPrefix)),
		tracker.WithTimeouts(seconds(cfg.Records.StatusTimeoutSeconds), seconds(cfg.Records.ResultTimeoutSeconds)),
	)

	stages := make(map[core.Direction]pipeline.Stages, 2)

	for _, direction := range []core.Direction{core.DirectionForward, core.DirectionBackward} {
		directionStages, stageErr := b.stages(direction, cfg.Direction(direction))
		if stageErr != nil {
			b.app.Close()

			return nil, fmt.Errorf("failed to build %s stages: %w", direction, stageErr)
		}

		stages[direction] = directionStages
	}

	p, err := pipeline.New(pipeline.Dependencies{
		TempFiles: tempfile.NewManager(cfg.Pipeline.TempDir, log),
		Fetcher:   fetcher,
		Publisher: publisher,
		Tracker:   statusTracker,
		Stages:    stages,
		Observer: func(jobID string, direction core.Direction, stage pipeline.Stage) {
			log.Info("Job %s (%s): %s", jobID, direction, stage)
		},
	}, log)
	if err != nil {
		b.app.Close()

		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	b.app.pipeline = p
	b.warmUp()

	return b.app, nil
}

// objectStore binds the JetStream audio bucket. It is optional unless the publisher needs it.
func (b *builder) objectStore(natsConnection *nats.Conn) *objectstore.NatsObjectStore {
	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		b.log.Warn("JetStream unavailable, object store disabled: %v", err)

		return nil
	}

	store, err := objectstore.New(jetstreamContext, b.cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		b.log.Warn("Object store '%s' unavailable: %v", b.cfg.NATS.AudioObjectStoreBucket, err)

		return nil
	}

	b.log.Info("Object store bucket '%s' ready.", store.Bucket())

	return store
}

func (b *builder) fetcher(store *objectstore.NatsObjectStore) *fetch.Fetcher {
	httpClient := &http.Client{Timeout: seconds(b.cfg.Pipeline.FetchTimeoutSeconds)}
	resolvers := make([]fetch.Resolver, 0, 3)

	if b.secrets.SupabaseURL != "" {
		resolvers = append(resolvers, fetch.NewSupabaseResolver(b.secrets.SupabaseURL, b.secrets.SupabaseServiceKey, httpClient))
	}

	if store != nil {
		resolvers = append(resolvers, fetch.NewObjectStoreResolver(store))
	}

	resolvers = append(resolvers, fetch.NewURLResolver(httpClient))

	return fetch.New(b.log, resolvers...)
}

func (b *builder) publisher(store *objectstore.NatsObjectStore) (core.Publisher, error) {
	keys := publish.NewKeyBuilder(b.cfg.Publish.KeyPrefix)

	switch b.cfg.Publish.Backend {
	case config.BackendSupabase:
		return publish.NewSupabasePublisher(publish.SupabaseConfig{
			BaseURL:    b.secrets.SupabaseURL,
			ServiceKey: b.secrets.SupabaseServiceKey,
			Bucket:     b.cfg.Supabase.StorageBucket,
			Timeout:    seconds(b.cfg.Publish.TimeoutSeconds),
		}, keys, b.log), nil
	case config.BackendObjectStore:
		if store == nil {
			return nil, core.ConfigurationError("publisher", errObjectStoreRequired)
		}

		return publish.NewObjectStorePublisher(store, keys, b.log), nil
	default:
		return nil, core.ConfigurationError(
			"publisher",
			fmt.Errorf("%w: %q", errUnknownBackend, b.cfg.Publish.Backend),
		)
	}
}

func (b *builder) recordStore() (core.RecordStore, error) {
	switch b.cfg.Records.Backend {
	case config.BackendSupabase:
		return records.NewSupabaseStore(records.SupabaseConfig{
			BaseURL:    b.secrets.SupabaseURL,
			ServiceKey: b.secrets.SupabaseServiceKey,
			Table:      b.cfg.Supabase.MessagesTable,
		}, b.log), nil
	case config.BackendMongo:
		uri := b.cfg.Records.MongoURI
		if uri == "" {
			uri = b.secrets.MongoURI
		}

		if uri == "" {
			return nil, core.ConfigurationError("records", errRecordsNotConfigured)
		}

		client, err := records.ConnectMongo(b.ctx, uri)
		if err != nil {
			return nil, core.ConfigurationError("records", err)
		}

		b.app.closers = append(b.app.closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			disconnectErr := client.Disconnect(ctx)
			if disconnectErr != nil {
				b.log.Warn("Failed to disconnect from mongo: %v", disconnectErr)
			}
		})

		collection := client.Database(b.cfg.Records.MongoDatabase).Collection(b.cfg.Records.MongoCollection)

		return records.NewMongoStore(collection, b.log), nil
	default:
		return nil, core.ConfigurationError(
			"records",
			fmt.Errorf("%w: %q", errUnknownBackend, b.cfg.Records.Backend),
		)
	}
}

func (b *builder) stages(direction core.Direction, directionCfg config.DirectionConfig) (pipeline.Stages, error) {
	recognizer, err := b.recognizer(directionCfg)
	if err != nil {
		return pipeline.Stages{}, err
	}

	transformer, err := b.transformer(directionCfg)
	if err != nil {
		return pipeline.Stages{}, err
	}

	synthesizer, err := b.synthesizer(directionCfg)
	if err != nil {
		return pipeline.Stages{}, err
	}

	b.log.Info(
		"Direction %s: recognizer=%s transformer=%s synthesizer=%s voice=%s",
		direction, directionCfg.Recognizer, directionCfg.Transformer, directionCfg.Synthesizer, directionCfg.Voice.Voice,
	)

	return pipeline.Stages{
		Recognizer:  recognizer,
		Transformer: transformer,
		Synthesizer: synthesizer,
		Voice:       directionCfg.Voice,
	}, nil
}

func (b *builder) recognizer(directionCfg config.DirectionConfig) (core.Recognizer, error) {
	whisper := func(variant recognize.Variant) (core.Recognizer, error) {
		return recognize.NewWhisperClient(recognize.WhisperConfig{
			BaseURL:  b.cfg.Groq.BaseURL,
			APIKey:   b.secrets.GroqAPIKey,
			Model:    b.cfg.Groq.WhisperModel,
			Language: directionCfg.LanguageHint,
			Variant:  variant,
			Timeout:  seconds(b.cfg.Groq.TimeoutSeconds),
		}, b.log)
	}

	switch directionCfg.Recognizer {
	case config.RecognizerWhisperTranslate:
		return whisper(recognize.Translate)
	case config.RecognizerWhisperTranscribe:
		return whisper(recognize.Transcribe)
	case config.RecognizerGoogle:
		recognizer, err := recognize.NewGoogleRecognizer(b.ctx, recognize.GoogleConfig{
			Encoding:        b.cfg.Google.Encoding,
			SampleRateHertz: b.cfg.Google.SampleRateHertz,
			LanguageCode:    directionCfg.LanguageHint,
		}, b.log)
		if err != nil {
			return nil, err
		}

		b.app.closers = append(b.app.closers, func() {
			closeErr := recognizer.Close()
			if closeErr != nil {
				b.log.Warn("Failed to close speech client: %v", closeErr)
			}
		})

		return recognizer, nil
	default:
		return nil, core.ConfigurationError(
			"recognizer",
			fmt.Errorf("%w: %q", errUnknownBackend, directionCfg.Recognizer),
		)
	}
}

func (b *builder) transformer(directionCfg config.DirectionConfig) (core.Transformer, error) {
	temperature := b.cfg.Transform.Temperature

	switch directionCfg.Transformer {
	case config.TransformerNone, "":
		return nil, nil
	case config.TransformerLocal:
		return transform.NewLocalTranslator(
			b.localRuntime(), directionCfg.TranslateFrom, directionCfg.TranslateTo, temperature, b.log,
		), nil
	case config.TransformerChat:
		return transform.NewChatCleaner(transform.ChatConfig{
			BaseURL:     b.cfg.Groq.BaseURL,
			APIKey:      b.secrets.GroqAPIKey,
			Model:       b.cfg.Groq.ChatModel,
			Language:    directionCfg.CleanupLanguage,
			Temperature: temperature,
			Timeout:     seconds(b.cfg.Transform.TimeoutSeconds),
		}, b.log)
	case config.TransformerGemini:
		if b.gemini == nil {
			client, err := transform.NewGeminiClient(b.ctx, b.secrets.GeminiAPIKey)
			if err != nil {
				return nil, err
			}

			b.gemini = client
		}

		return transform.NewGeminiCleaner(
			b.gemini.Models, b.cfg.Transform.GeminiModel, directionCfg.CleanupLanguage, temperature, b.log,
		), nil
	default:
		return nil, core.ConfigurationError(
			"transformer",
			fmt.Errorf("%w: %q", errUnknownBackend, directionCfg.Transformer),
		)
	}
}

// localRuntime returns the one process-wide local engine runtime.
func (b *builder) localRuntime() *transform.Runtime {
	if b.runtime == nil {
		b.runtime = transform.NewRuntime(transform.RuntimeConfig{
			BaseURL: b.cfg.Transform.LocalURL,
			Model:   b.cfg.Transform.LocalModel,
			Timeout: seconds(b.cfg.Transform.TimeoutSeconds),
		}, b.log)
		b.app.closers = append(b.app.closers, b.runtime.Close)
	}

	return b.runtime
}

func (b *builder) synthesizer(directionCfg config.DirectionConfig) (core.Synthesizer, error) {
	switch directionCfg.Synthesizer {
	case config.SynthesizerGroq:
		return synthesize.NewSpeechClient(synthesize.SpeechConfig{
			BaseURL: b.cfg.Groq.BaseURL,
			APIKey:  b.secrets.GroqAPIKey,
			Timeout: seconds(b.cfg.Groq.TimeoutSeconds),
		}, b.log)
	case config.SynthesizerElevenLabs:
		return synthesize.NewElevenLabsClient(synthesize.ElevenLabsConfig{
			BaseURL: b.cfg.ElevenLabs.BaseURL,
			APIKey:  b.secrets.ElevenLabsAPIKey,
			Timeout: seconds(b.cfg.ElevenLabs.TimeoutSeconds),
			PCM:     synthesize.DefaultElevenLabsPCM,
		}, b.log)
	default:
		return nil, core.ConfigurationError(
			"synthesizer",
			fmt.Errorf("%w: %q", errUnknownBackend, directionCfg.Synthesizer),
		)
	}
}

// warmUp loads the local model in the background so the first job does not pay for it.
// A failure here is retried by the first job that needs the engine.
func (b *builder) warmUp() {
	if b.runtime == nil {
		return
	}

	runtime := b.runtime

	go func() {
		err := runtime.Init(b.ctx)
		if err != nil {
			b.log.Warn("Local engine warm-up failed, will retry on first use: %v", err)

			return
		}

		b.log.Info("Local engine model '%s' ready.", b.cfg.Transform.LocalModel)
	}()
}
