package capture

import (
	"context"
	"fmt"
	"os"
)

// Pad is a signature drawing surface.
type Pad interface {
	Capture(ctx context.Context) (*Artifact, error)
}

// Sign acquires the guard for the duration of one signature capture.
func Sign(ctx context.Context, g *Guard, pad Pad) (*Artifact, error) {
	release, err := g.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	art, err := pad.Capture(ctx)
	if err != nil {
		return nil, fmt.Errorf("capture: signature: %w", err)
	}
	return art, nil
}

// FilePad loads a pre-drawn signature image.
type FilePad struct {
	Path string
}

// Capture implements Pad.
func (p FilePad) Capture(ctx context.Context) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, err
	}
	return NewArtifact(data)
}
