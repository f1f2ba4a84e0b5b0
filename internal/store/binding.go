package store

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/zulandar/intake/internal/intake"
	"github.com/zulandar/intake/internal/models"
)

// Binding ties one controller to its current session row. It serves as the
// controller's SessionIDStore, Recorder and OnEvent hook. When the
// controller starts over, the old row is abandoned (unless it already
// finished) and the binding moves to a fresh row with the same source and
// user, so each dialogue session gets its own row and transcript.
type Binding struct {
	store *Store

	mu    sync.Mutex
	row   models.IntakeSession
	track *tracker
}

// Bind returns a binding that starts on row.
func (s *Store) Bind(row *models.IntakeSession) *Binding {
	return &Binding{store: s, row: *row, track: &tracker{store: s}}
}

// Row returns a copy of the row the binding currently writes to.
func (b *Binding) Row() models.IntakeSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.row
}

// Handle returns the current row's handle.
func (b *Binding) Handle() string {
	return b.Row().Handle
}

// Get implements intake.SessionIDStore.
func (b *Binding) Get() (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.Slot(b.row.ID).Get()
}

// Set implements intake.SessionIDStore.
func (b *Binding) Set(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.SetRemoteID(b.row.ID, id)
}

// Clear implements intake.SessionIDStore.
func (b *Binding) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.ClearRemoteID(b.row.ID)
}

// Record implements intake.Recorder.
func (b *Binding) Record(msg intake.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.store.RecordMessage(b.row.ID, msg)
}

// OnEvent mirrors controller events into the current row and moves to a
// fresh row on reset.
func (b *Binding) OnEvent(ev intake.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ev.Kind == intake.EventReset {
		if err := b.reopenLocked(); err != nil {
			log.Printf("store: %v", err)
		}
		return
	}
	b.track.apply(b.row.ID, ev)
}

// Abandon marks the current row abandoned. A row that already finished is
// left as it is.
func (b *Binding) Abandon() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.abandonLocked()
}

func (b *Binding) abandonLocked() error {
	if err := b.store.Abandon(b.row.ID); err != nil && !errors.Is(err, ErrNotActive) {
		return err
	}
	return nil
}

func (b *Binding) reopenLocked() error {
	old := b.row
	if err := b.abandonLocked(); err != nil {
		return fmt.Errorf("reopen %s: %w", old.Handle, err)
	}
	row, err := b.store.Open(old.Source, old.UserName)
	if err != nil {
		return fmt.Errorf("reopen %s: %w", old.Handle, err)
	}
	b.row = *row
	b.track = &tracker{store: b.store}
	return nil
}
