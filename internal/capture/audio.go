package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// SampleRate is the rate raw PCM captures are assumed to be recorded at.
const SampleRate = 16000

// Stream is an open audio capture. Close stops the underlying device.
type Stream interface {
	io.Reader
	Close() error
}

// Microphone opens audio streams.
type Microphone interface {
	Open(ctx context.Context) (Stream, error)
}

// EncodeAudio drains the stream, stops it, and returns the recording as a
// base64 WAV payload. The stream is closed before encoding starts, even when
// reading fails.
func EncodeAudio(s Stream) (string, error) {
	data, readErr := io.ReadAll(s)
	closeErr := s.Close()
	if readErr != nil {
		return "", fmt.Errorf("capture: read audio: %w", readErr)
	}
	if closeErr != nil {
		return "", fmt.Errorf("capture: stop audio: %w", closeErr)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("capture: no audio recorded")
	}
	if !isWAV(data) {
		data = PCMToWAV(data, SampleRate)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Record acquires the guard, captures one recording from mic and releases
// everything before returning the encoded payload.
func Record(ctx context.Context, g *Guard, mic Microphone) (string, error) {
	release, err := g.Acquire()
	if err != nil {
		return "", err
	}
	defer release()

	s, err := mic.Open(ctx)
	if err != nil {
		return "", fmt.Errorf("capture: open microphone: %w", err)
	}
	return EncodeAudio(s)
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE"))
}

// PCMToWAV wraps 16-bit little-endian mono PCM in a WAV header.
func PCMToWAV(pcm []byte, sampleRate int) []byte {
	dataLen := len(pcm)
	totalLen := 44 + dataLen

	buf := make([]byte, totalLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(totalLen-8))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
	copy(buf[44:], pcm)
	return buf
}

// FileMicrophone replays a recording from disk. WAV files pass through as-is,
// anything else is treated as raw PCM.
type FileMicrophone struct {
	Path string
}

// Open implements Microphone.
func (m FileMicrophone) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(m.Path)
	if err != nil {
		return nil, err
	}
	return f, nil
}
