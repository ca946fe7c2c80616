package main

import (
	"flag"
	"testing"

	"github.com/book-expert/translation-service/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	t.Parallel()

	set := flag.NewFlagSet("translate-client", flag.ContinueOnError)
	flags := parseFlags(set, []string{"--direction", "mts", "--audio", "a.webm", "--from", "en", "--to", "ur"})

	assert.Equal(t, "mts", flags.direction)
	assert.Equal(t, "a.webm", flags.audio)
	assert.Equal(t, "translation.pipeline", flags.prefix)
}

func TestBuildRequest(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		flags     appFlags
		wantErr   error
		direction core.Direction
	}{
		{
			name:      "valid forward job",
			flags:     appFlags{direction: "stm", jobID: "job-1", audio: "https://x/a.webm", from: "ur", to: "en"},
			direction: core.DirectionForward,
		},
		{
			name:    "unknown direction",
			flags:   appFlags{direction: "sideways", audio: "a", from: "ur", to: "en"},
			wantErr: core.ErrUnknownDirection,
		},
		{
			name:    "missing audio",
			flags:   appFlags{direction: "forward", from: "ur", to: "en"},
			wantErr: errAudioRequired,
		},
		{
			name:    "missing language",
			flags:   appFlags{direction: "backward", audio: "a", from: "en"},
			wantErr: errLanguages,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			direction, job, err := buildRequest(testCase.flags)
			if testCase.wantErr != nil {
				require.ErrorIs(t, err, testCase.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, testCase.direction, direction)
			require.NoError(t, job.Validate())
		})
	}

	_, job, err := buildRequest(appFlags{direction: "forward", audio: "a", from: "ur", to: "en"})
	require.NoError(t, err)
	assert.NotEmpty(t, job.JobID)
}

func TestFormatReply(t *testing.T) {
	t.Parallel()

	output, err := formatReply([]byte(`{"messageId":"job-1","text_translated":"hello","translated_audio_url":"ref"}`))
	require.NoError(t, err)
	assert.Contains(t, output, "hello")
	assert.Contains(t, output, "ref")

	output, err = formatReply([]byte(`{"code":422,"kind":"empty_speech","detail":"no speech"}`))
	require.ErrorIs(t, err, errJobFailed)
	assert.Contains(t, output, "422")

	_, err = formatReply([]byte("nope"))
	require.Error(t, err)
}
