package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// pngHeader is enough of a PNG for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakeStream struct {
	*bytes.Reader
	closed  bool
	readErr error
}

func (s *fakeStream) Read(p []byte) (int, error) {
	if s.readErr != nil {
		return 0, s.readErr
	}
	return s.Reader.Read(p)
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

type fakeMic struct {
	stream *fakeStream
}

func (m *fakeMic) Open(ctx context.Context) (Stream, error) { return m.stream, nil }

func TestGuard_Exclusive(t *testing.T) {
	var g Guard
	release, err := g.Acquire()
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !g.Busy() {
		t.Error("Busy() = false while held")
	}
	if _, err := g.Acquire(); !errors.Is(err, ErrCaptureInProgress) {
		t.Errorf("second Acquire error = %v, want ErrCaptureInProgress", err)
	}
	release()
	release()
	if g.Busy() {
		t.Error("Busy() = true after release")
	}
	if _, err := g.Acquire(); err != nil {
		t.Errorf("Acquire after release: %v", err)
	}
}

func TestEncodeAudio_WrapsPCMAndClosesStream(t *testing.T) {
	s := &fakeStream{Reader: bytes.NewReader([]byte{1, 0, 2, 0})}
	payload, err := EncodeAudio(s)
	if err != nil {
		t.Fatalf("EncodeAudio: %v", err)
	}
	if !s.closed {
		t.Error("stream not closed")
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if !isWAV(raw) {
		t.Error("payload is not a WAV file")
	}
	if len(raw) != 44+4 {
		t.Errorf("len = %d, want 48", len(raw))
	}
}

func TestEncodeAudio_WAVPassThrough(t *testing.T) {
	wav := PCMToWAV([]byte{9, 9}, 8000)
	s := &fakeStream{Reader: bytes.NewReader(wav)}
	payload, err := EncodeAudio(s)
	if err != nil {
		t.Fatalf("EncodeAudio: %v", err)
	}
	if payload != base64.StdEncoding.EncodeToString(wav) {
		t.Error("WAV input was re-encoded")
	}
}

func TestEncodeAudio_ReadErrorStillCloses(t *testing.T) {
	s := &fakeStream{Reader: bytes.NewReader(nil), readErr: errors.New("device unplugged")}
	if _, err := EncodeAudio(s); err == nil {
		t.Fatal("expected error")
	}
	if !s.closed {
		t.Error("stream not closed after read error")
	}
}

func TestEncodeAudio_Empty(t *testing.T) {
	s := &fakeStream{Reader: bytes.NewReader(nil)}
	if _, err := EncodeAudio(s); err == nil {
		t.Fatal("expected error for empty recording")
	}
}

func TestRecord_ReleasesGuard(t *testing.T) {
	var g Guard
	mic := &fakeMic{stream: &fakeStream{Reader: bytes.NewReader([]byte{1, 2})}}
	if _, err := Record(context.Background(), &g, mic); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if g.Busy() {
		t.Error("guard still held after Record")
	}
}

func TestNewArtifact(t *testing.T) {
	art, err := NewArtifact(pngHeader)
	if err != nil {
		t.Fatalf("NewArtifact: %v", err)
	}
	if art.MIME != "image/png" {
		t.Errorf("MIME = %q, want image/png", art.MIME)
	}
	if !strings.HasPrefix(art.DataURL(), "data:image/png;base64,") {
		t.Errorf("DataURL = %q", art.DataURL())
	}

	if _, err := NewArtifact([]byte("hello")); err == nil {
		t.Error("expected error for text payload")
	}
	if _, err := NewArtifact(nil); err == nil {
		t.Error("expected error for empty payload")
	}
}

func TestFilePad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sig.png")
	if err := os.WriteFile(path, pngHeader, 0o644); err != nil {
		t.Fatal(err)
	}
	var g Guard
	art, err := Sign(context.Background(), &g, FilePad{Path: path})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if art.MIME != "image/png" {
		t.Errorf("MIME = %q", art.MIME)
	}
	if g.Busy() {
		t.Error("guard still held after Sign")
	}

	if _, err := Sign(context.Background(), &g, FilePad{Path: filepath.Join(t.TempDir(), "missing.png")}); err == nil {
		t.Error("expected error for missing file")
	}
}
