package synthesize

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// PCM limits.
const (
	maxSampleRate = 192000
	maxChannels   = 8

	wavHeaderSize = 44
)

// ErrInvalidPCMFormat is returned for an unusable PCMFormat.
var ErrInvalidPCMFormat = errors.New("invalid pcm format")

// PCMFormat describes raw little-endian PCM audio.
type PCMFormat struct {
	SampleRate int
	BitDepth   int
	Channels   int
}

// Validate checks that the format can be written as a WAV header.
func (f PCMFormat) Validate() error {
	if f.SampleRate <= 0 || f.SampleRate > maxSampleRate {
		return fmt.Errorf("%w: sample rate must be between 1 and %d Hz", ErrInvalidPCMFormat, maxSampleRate)
	}

	switch f.BitDepth {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("%w: bit depth must be 8, 16, 24, or 32", ErrInvalidPCMFormat)
	}

	if f.Channels <= 0 || f.Channels > maxChannels {
		return fmt.Errorf("%w: channels must be between 1 and %d", ErrInvalidPCMFormat, maxChannels)
	}

	return nil
}

// WriteWAVHeader writes a canonical 44-byte RIFF header for dataSize bytes of PCM.
func WriteWAVHeader(w io.Writer, format PCMFormat, dataSize uint32) error {
	blockAlign := uint16(format.Channels * format.BitDepth / 8)
	byteRate := uint32(format.SampleRate) * uint32(blockAlign)

	header := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		uint32(wavHeaderSize - 8 + dataSize),
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16),
		uint16(1),
		uint16(format.Channels),
		uint32(format.SampleRate),
		byteRate,
		blockAlign,
		uint16(format.BitDepth),
		[4]byte{'d', 'a', 't', 'a'},
		dataSize,
	}

	for _, field := range header {
		err := binary.Write(w, binary.LittleEndian, field)
		if err != nil {
			return fmt.Errorf("failed to write wav header: %w", err)
		}
	}

	return nil
}
