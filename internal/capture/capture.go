// Package capture provides the audio and signature collaborators used when an
// answer is not typed: a microphone yielding a base64 WAV payload and a
// signature pad yielding an image artifact. Both are exclusive resources.
package capture

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sync"
)

// ErrCaptureInProgress is returned when a second capture is started while one
// is still holding the device.
var ErrCaptureInProgress = errors.New("capture: another capture is in progress")

// Guard hands out a single capture slot at a time.
type Guard struct {
	mu   sync.Mutex
	held bool
}

// Acquire claims the slot. The returned release func is idempotent.
func (g *Guard) Acquire() (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held {
		return nil, ErrCaptureInProgress
	}
	g.held = true

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			g.held = false
			g.mu.Unlock()
		})
	}, nil
}

// Busy reports whether a capture currently holds the slot.
func (g *Guard) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.held
}

// Artifact is a captured image, typically a drawn signature.
type Artifact struct {
	MIME string
	Data []byte
}

// NewArtifact sniffs the content type of data and rejects anything that is
// not an image.
func NewArtifact(data []byte) (*Artifact, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("capture: empty artifact")
	}
	mime := http.DetectContentType(data)
	switch mime {
	case "image/png", "image/jpeg", "image/gif", "image/webp":
	default:
		return nil, fmt.Errorf("capture: artifact is %s, want an image", mime)
	}
	return &Artifact{MIME: mime, Data: data}, nil
}

// DataURL renders the artifact as a data: URL reference.
func (a *Artifact) DataURL() string {
	return "data:" + a.MIME + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}
