package recognize

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/book-expert/logger"
	"github.com/book-expert/translation-service/internal/core"
	"google.golang.org/protobuf/encoding/protojson"
)

// ErrUnsupportedEncoding is returned for an encoding name Cloud Speech does not know.
var ErrUnsupportedEncoding = errors.New("unsupported audio encoding")

// SpeechAPI is the subset of the Cloud Speech client used by GoogleRecognizer.
type SpeechAPI interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)
	Close() error
}

// GoogleConfig configures a GoogleRecognizer.
type GoogleConfig struct {
	Encoding        string
	SampleRateHertz int
	LanguageCode    string
}

// GoogleRecognizer transcribes with Cloud Speech-to-Text synchronous recognition.
type GoogleRecognizer struct {
	api      SpeechAPI
	encoding speechpb.RecognitionConfig_AudioEncoding
	cfg      GoogleConfig
	log      *logger.Logger
}

type cloudSpeech struct {
	client *speech.Client
}

func (c *cloudSpeech) Recognize(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
	return c.client.Recognize(ctx, req)
}

func (c *cloudSpeech) Close() error {
	return c.client.Close()
}

// NewGoogleRecognizer connects to Cloud Speech using application default credentials.
func NewGoogleRecognizer(ctx context.Context, cfg GoogleConfig, log *logger.Logger) (*GoogleRecognizer, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, core.ConfigurationError("failed to create speech client", err)
	}

	recognizer, err := NewGoogleRecognizerWithAPI(&cloudSpeech{client: client}, cfg, log)
	if err != nil {
		closeErr := client.Close()
		if closeErr != nil {
			log.Warn("Failed to close speech client: %v", closeErr)
		}

		return nil, err
	}

	return recognizer, nil
}

// NewGoogleRecognizerWithAPI builds a recognizer over an existing SpeechAPI.
func NewGoogleRecognizerWithAPI(api SpeechAPI, cfg GoogleConfig, log *logger.Logger) (*GoogleRecognizer, error) {
	encoding, err := AudioEncoding(cfg.Encoding)
	if err != nil {
		return nil, core.ConfigurationError("google recognizer", err)
	}

	return &GoogleRecognizer{
		api:      api,
		encoding: encoding,
		cfg:      cfg,
		log:      log,
	}, nil
}

// Recognize sends the whole file in one request and joins the best alternatives.
func (g *GoogleRecognizer) Recognize(ctx context.Context, audioPath string) (core.RecognitionResult, error) {
	content, err := os.ReadFile(audioPath)
	if err != nil {
		return core.RecognitionResult{}, core.NewError(core.KindRecognition, "failed to read audio file", err)
	}

	response, err := g.api.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        g.encoding,
			SampleRateHertz: int32(g.cfg.SampleRateHertz),
			LanguageCode:    g.cfg.LanguageCode,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: content},
		},
	})
	if err != nil {
		return core.RecognitionResult{}, core.NewError(core.KindRecognition, "speech recognition failed", err)
	}

	raw, err := protojson.Marshal(response)
	if err != nil {
		return core.RecognitionResult{}, core.NewError(core.KindRecognition, "failed to encode response", err)
	}

	parts := make([]string, 0, len(response.GetResults()))

	for _, result := range response.GetResults() {
		alternatives := result.GetAlternatives()
		if len(alternatives) == 0 {
			continue
		}

		transcript := strings.TrimSpace(alternatives[0].GetTranscript())
		if transcript != "" {
			parts = append(parts, transcript)
		}
	}

	text := strings.Join(parts, " ")
	g.log.Info("Cloud Speech returned %d results, %d characters", len(parts), len(text))

	return core.RecognitionResult{RawPayload: raw, Text: text}, nil
}

// Close releases the underlying client.
func (g *GoogleRecognizer) Close() error {
	return g.api.Close()
}

// AudioEncoding maps a configuration name to the Cloud Speech enum.
func AudioEncoding(name string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "LINEAR16", "WAV":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "AMR":
		return speechpb.RecognitionConfig_AMR, nil
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB, nil
	case "OGG_OPUS", "OGG":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "WEBM_OPUS", "WEBM":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, name)
	}
}
