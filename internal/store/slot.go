package store

import (
	"log"

	"github.com/zulandar/intake/internal/intake"
)

// IDSlot keeps a session's dialogue service id in the database. It
// implements intake.SessionIDStore.
type IDSlot struct {
	store     *Store
	sessionID uint
}

// Slot returns the id slot for the session row id.
func (s *Store) Slot(id uint) *IDSlot {
	return &IDSlot{store: s, sessionID: id}
}

// Get implements intake.SessionIDStore.
func (sl *IDSlot) Get() (string, bool) {
	id, ok, err := sl.store.RemoteID(sl.sessionID)
	if err != nil {
		log.Printf("store: read session id for %d: %v", sl.sessionID, err)
		return "", false
	}
	return id, ok
}

// Set implements intake.SessionIDStore.
func (sl *IDSlot) Set(id string) error {
	return sl.store.SetRemoteID(sl.sessionID, id)
}

// Clear implements intake.SessionIDStore.
func (sl *IDSlot) Clear() error {
	return sl.store.ClearRemoteID(sl.sessionID)
}

// Recorder writes a controller's log into a session's transcript. It
// implements intake.Recorder.
type Recorder struct {
	store     *Store
	sessionID uint
}

// Recorder returns the transcript recorder for the session row id.
func (s *Store) Recorder(id uint) *Recorder {
	return &Recorder{store: s, sessionID: id}
}

// Record implements intake.Recorder.
func (r *Recorder) Record(msg intake.Message) error {
	return r.store.RecordMessage(r.sessionID, msg)
}

// Track mirrors controller events that change the session row: phase
// updates and completion. Chain it from an intake.Opts.OnEvent callback.
func (s *Store) Track(id uint) func(intake.Event) {
	t := &tracker{store: s}
	return func(ev intake.Event) { t.apply(id, ev) }
}

type tracker struct {
	store     *Store
	lastPhase string
}

func (t *tracker) apply(id uint, ev intake.Event) {
	switch ev.Kind {
	case intake.EventQuestion:
		if p := string(ev.State.Phase); p != t.lastPhase {
			t.lastPhase = p
			if err := t.store.SetPhase(id, p); err != nil {
				log.Printf("store: track phase for %d: %v", id, err)
			}
		}
	case intake.EventComplete:
		if err := t.store.SetPhase(id, string(intake.PhaseComplete)); err != nil {
			log.Printf("store: track phase for %d: %v", id, err)
		}
		if err := t.store.Complete(id); err != nil {
			log.Printf("store: complete %d: %v", id, err)
		}
	}
}
