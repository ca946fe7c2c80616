package config

import "github.com/book-expert/translation-service/internal/core"

const (
	defaultNATSURL             = "nats://127.0.0.1:4222"
	defaultJobSubjectPrefix    = "translation.pipeline"
	defaultQueueGroup          = "translation-workers"
	defaultStatusSubjectPrefix = "translation.status"
	defaultAudioBucket         = "TRANSLATED_AUDIO"

	defaultStorageBucket = "messages"
	defaultMessagesTable = "messages"

	defaultMongoDatabase   = "minorcare"
	defaultMongoCollection = "messages"
	defaultStatusTimeout   = 15
	defaultResultTimeout   = 30

	defaultKeyPrefix      = "translations"
	defaultPublishTimeout = 120

	defaultGroqBaseURL  = "https://api.groq.com/openai/v1"
	defaultWhisperModel = "whisper-large-v3"
	defaultChatModel    = "llama-3.1-8b-instant"
	defaultGroqTimeout  = 120

	defaultSpeechModel = "playai-tts"
	defaultSpeechVoice = "Fritz-PlayAI"

	defaultMaxConcurrentJobs = 4
	defaultJobTimeout        = 600
	defaultFetchTimeout      = 120

	defaultLocalURL         = "http://127.0.0.1:11434"
	defaultLocalModel       = "llama3.1"
	defaultGeminiModel      = "gemini-2.0-flash"
	defaultTemperature      = 0.4
	defaultTransformTimeout = 120

	defaultElevenLabsURL     = "https://api.elevenlabs.io/v1"
	defaultElevenLabsTimeout = 60

	defaultGoogleEncoding   = "WEBM_OPUS"
	defaultGoogleSampleRate = 48000

	defaultLogsDir = "logs"
)

// ApplyDefaults fills every unset field. The forward direction translates while
// transcribing; the backward direction transcribes and then translates locally.
func (c *Config) ApplyDefaults() {
	setString(&c.NATS.URL, defaultNATSURL)
	setString(&c.NATS.JobSubjectPrefix, defaultJobSubjectPrefix)
	setString(&c.NATS.QueueGroup, defaultQueueGroup)
	setString(&c.NATS.StatusSubjectPrefix, defaultStatusSubjectPrefix)
	setString(&c.NATS.AudioObjectStoreBucket, defaultAudioBucket)

	setString(&c.Supabase.StorageBucket, defaultStorageBucket)
	setString(&c.Supabase.MessagesTable, defaultMessagesTable)

	setString(&c.Records.Backend, BackendSupabase)
	setString(&c.Records.MongoDatabase, defaultMongoDatabase)
	setString(&c.Records.MongoCollection, defaultMongoCollection)
	setInt(&c.Records.StatusTimeoutSeconds, defaultStatusTimeout)
	setInt(&c.Records.ResultTimeoutSeconds, defaultResultTimeout)

	setString(&c.Publish.Backend, BackendSupabase)
	setString(&c.Publish.KeyPrefix, defaultKeyPrefix)
	setInt(&c.Publish.TimeoutSeconds, defaultPublishTimeout)

	setString(&c.Groq.BaseURL, defaultGroqBaseURL)
	setString(&c.Groq.WhisperModel, defaultWhisperModel)
	setString(&c.Groq.ChatModel, defaultChatModel)
	setInt(&c.Groq.TimeoutSeconds, defaultGroqTimeout)

	setString(&c.Pipeline.Forward.Recognizer, RecognizerWhisperTranslate)
	setString(&c.Pipeline.Forward.Transformer, TransformerNone)
	applyDirectionDefaults(&c.Pipeline.Forward)

	setString(&c.Pipeline.Backward.Recognizer, RecognizerWhisperTranscribe)
	setString(&c.Pipeline.Backward.Transformer, TransformerLocal)
	setString(&c.Pipeline.Backward.LanguageHint, "en")
	setString(&c.Pipeline.Backward.TranslateFrom, "en")
	setString(&c.Pipeline.Backward.TranslateTo, "ur")
	applyDirectionDefaults(&c.Pipeline.Backward)

	setInt(&c.Pipeline.MaxConcurrentJobs, defaultMaxConcurrentJobs)
	setInt(&c.Pipeline.JobTimeoutSeconds, defaultJobTimeout)
	setInt(&c.Pipeline.FetchTimeoutSeconds, defaultFetchTimeout)

	setString(&c.Transform.LocalURL, defaultLocalURL)
	setString(&c.Transform.LocalModel, defaultLocalModel)
	setString(&c.Transform.GeminiModel, defaultGeminiModel)
	setInt(&c.Transform.TimeoutSeconds, defaultTransformTimeout)

	if c.Transform.Temperature == 0 {
		c.Transform.Temperature = defaultTemperature
	}

	setString(&c.ElevenLabs.BaseURL, defaultElevenLabsURL)
	setInt(&c.ElevenLabs.TimeoutSeconds, defaultElevenLabsTimeout)

	setString(&c.Google.Encoding, defaultGoogleEncoding)
	setInt(&c.Google.SampleRateHertz, defaultGoogleSampleRate)

	setString(&c.Paths.BaseLogsDir, defaultLogsDir)
}

func applyDirectionDefaults(direction *DirectionConfig) {
	setString(&direction.Synthesizer, SynthesizerGroq)
	setString(&direction.Voice.Model, defaultSpeechModel)
	setString(&direction.Voice.Voice, defaultSpeechVoice)
	setString(&direction.CleanupLanguage, "Urdu")

	// Only one encoding is produced, whatever the file says.
	direction.Voice.Format = core.AudioFormatWAV
}

func setString(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func setInt(field *int, value int) {
	if *field <= 0 {
		*field = value
	}
}
