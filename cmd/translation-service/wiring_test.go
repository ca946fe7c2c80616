package main

import (
	"context"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/translation-service/internal/config"
	"github.com/book-expert/translation-service/internal/core"
	"github.com/book-expert/translation-service/internal/publish"
	"github.com/book-expert/translation-service/internal/recognize"
	"github.com/book-expert/translation-service/internal/records"
	"github.com/book-expert/translation-service/internal/synthesize"
	"github.com/book-expert/translation-service/internal/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuilder(t *testing.T) *builder {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "wiring-test.log")
	require.NoError(t, err)

	var cfg config.Config
	cfg.ApplyDefaults()

	return &builder{
		ctx: context.Background(),
		cfg: &cfg,
		secrets: config.Secrets{
			GroqAPIKey:         "groq-key",
			SupabaseURL:        "https://project.supabase.co",
			SupabaseServiceKey: "service-key",
			ElevenLabsAPIKey:   "eleven-key",
		},
		log: testLogger,
		app: &app{},
	}
}

func TestBuilder_DefaultStages(t *testing.T) {
	t.Parallel()

	b := newTestBuilder(t)
	defer b.app.Close()

	forward, err := b.stages(core.DirectionForward, b.cfg.Pipeline.Forward)
	require.NoError(t, err)
	assert.IsType(t, &recognize.WhisperClient{}, forward.Recognizer)
	assert.Nil(t, forward.Transformer)
	assert.IsType(t, &synthesize.SpeechClient{}, forward.Synthesizer)
	assert.Equal(t, core.AudioFormatWAV, forward.Voice.Format)

	backward, err := b.stages(core.DirectionBackward, b.cfg.Pipeline.Backward)
	require.NoError(t, err)
	assert.IsType(t, &transform.LocalTranslator{}, backward.Transformer)

	// Both local translators share one runtime.
	first := b.localRuntime()
	assert.Same(t, first, b.localRuntime())
	assert.Len(t, b.app.closers, 1)
}

func TestBuilder_AlternativeBackends(t *testing.T) {
	t.Parallel()

	b := newTestBuilder(t)
	defer b.app.Close()

	directionCfg := b.cfg.Pipeline.Backward
	directionCfg.Transformer = config.TransformerChat
	directionCfg.Synthesizer = config.SynthesizerElevenLabs

	stages, err := b.stages(core.DirectionBackward, directionCfg)
	require.NoError(t, err)
	assert.IsType(t, &transform.ChatCleaner{}, stages.Transformer)
	assert.IsType(t, &synthesize.ElevenLabsClient{}, stages.Synthesizer)
}

func TestBuilder_UnknownBackends(t *testing.T) {
	t.Parallel()

	b := newTestBuilder(t)

	directionCfg := b.cfg.Pipeline.Forward
	directionCfg.Recognizer = "telepathy"

	_, err := b.stages(core.DirectionForward, directionCfg)
	require.ErrorIs(t, err, errUnknownBackend)
	assert.Equal(t, core.KindConfiguration, core.KindOf(err))

	b.cfg.Publish.Backend = "ftp"
	_, err = b.publisher(nil)
	require.ErrorIs(t, err, errUnknownBackend)

	b.cfg.Publish.Backend = config.BackendObjectStore
	_, err = b.publisher(nil)
	require.ErrorIs(t, err, errObjectStoreRequired)

	b.cfg.Records.Backend = "csv"
	_, err = b.recordStore()
	require.ErrorIs(t, err, errUnknownBackend)

	b.cfg.Records.Backend = config.BackendMongo
	_, err = b.recordStore()
	require.ErrorIs(t, err, errRecordsNotConfigured)
}

func TestBuilder_SupabaseDefaults(t *testing.T) {
	t.Parallel()

	b := newTestBuilder(t)

	publisher, err := b.publisher(nil)
	require.NoError(t, err)
	assert.IsType(t, &publish.SupabasePublisher{}, publisher)

	recordStore, err := b.recordStore()
	require.NoError(t, err)
	assert.IsType(t, &records.SupabaseStore{}, recordStore)

	fetcher := b.fetcher(nil)
	require.NotNil(t, fetcher)
}
