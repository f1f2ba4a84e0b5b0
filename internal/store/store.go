// Package store persists intake sessions and their conversation logs.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/zulandar/intake/internal/intake"
	"github.com/zulandar/intake/internal/models"
)

// Default configuration values for Store.
const (
	DefaultMaxTurns   = 200
	DefaultStaleAfter = 24 * time.Hour
)

var (
	// ErrNotFound is returned when no session matches.
	ErrNotFound = errors.New("store: session not found")
	// ErrMaxTurns is returned when a session's log is full.
	ErrMaxTurns = errors.New("store: max turns exceeded")
	// ErrNotActive is returned when finishing a session that already ended.
	ErrNotActive = errors.New("store: session not found or not active")
)

// ThreadBusyError is returned by AcquireThread when a chat thread already
// has an active intake.
type ThreadBusyError struct {
	ThreadKey string
	Handle    string
}

func (e *ThreadBusyError) Error() string {
	return fmt.Sprintf("store: thread %s already has active intake %s", e.ThreadKey, e.Handle)
}

// Store wraps the database with intake-specific operations.
type Store struct {
	db         *gorm.DB
	maxTurns   int
	staleAfter time.Duration
	now        func() time.Time
}

// Opts holds parameters for creating a Store.
type Opts struct {
	DB         *gorm.DB
	MaxTurns   int           // defaults to DefaultMaxTurns
	StaleAfter time.Duration // defaults to DefaultStaleAfter
	Now        func() time.Time
}

// New creates a Store.
func New(opts Opts) (*Store, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	maxTurns := opts.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	stale := opts.StaleAfter
	if stale <= 0 {
		stale = DefaultStaleAfter
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{db: opts.DB, maxTurns: maxTurns, staleAfter: stale, now: now}, nil
}

// Open creates a new active session row with a fresh handle.
func (s *Store) Open(source, userName string) (*models.IntakeSession, error) {
	sess := s.newSession(source, userName, "")
	if err := s.db.Create(sess).Error; err != nil {
		return nil, fmt.Errorf("store: open session: %w", err)
	}
	return sess, nil
}

func (s *Store) newSession(source, userName, threadKey string) *models.IntakeSession {
	return &models.IntakeSession{
		Handle:       uuid.NewString(),
		Source:       source,
		UserName:     userName,
		ThreadKey:    threadKey,
		Status:       models.StatusActive,
		LastActivity: s.now(),
	}
}

// AcquireThread opens a session bound to a chat thread. Only one active
// session may exist per thread; sessions idle for longer than the stale
// window are expired first.
func (s *Store) AcquireThread(source, userName, threadKey string) (*models.IntakeSession, error) {
	var sess *models.IntakeSession

	err := s.db.Transaction(func(tx *gorm.DB) error {
		now := s.now()
		cutoff := now.Add(-s.staleAfter)

		if err := tx.Model(&models.IntakeSession{}).
			Where("status = ? AND thread_key = ? AND last_activity < ?", models.StatusActive, threadKey, cutoff).
			Updates(map[string]interface{}{
				"status":       models.StatusExpired,
				"completed_at": now,
			}).Error; err != nil {
			return fmt.Errorf("expire stale sessions: %w", err)
		}

		var existing models.IntakeSession
		result := tx.Where("status = ? AND thread_key = ?", models.StatusActive, threadKey).First(&existing)
		if result.Error == nil {
			return &ThreadBusyError{ThreadKey: threadKey, Handle: existing.Handle}
		}
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check existing session: %w", result.Error)
		}

		sess = s.newSession(source, userName, threadKey)
		if err := tx.Create(sess).Error; err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		return nil
	})
	if err != nil {
		var busy *ThreadBusyError
		if errors.As(err, &busy) {
			return nil, busy
		}
		return nil, fmt.Errorf("store: acquire thread: %w", err)
	}
	return sess, nil
}

// ActiveForThread returns the active session bound to threadKey.
func (s *Store) ActiveForThread(threadKey string) (*models.IntakeSession, error) {
	var sess models.IntakeSession
	err := s.db.Where("status = ? AND thread_key = ?", models.StatusActive, threadKey).
		Order("id DESC").First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: active for thread: %w", err)
	}
	return &sess, nil
}

// Get returns the session with the given handle.
func (s *Store) Get(handle string) (*models.IntakeSession, error) {
	var sess models.IntakeSession
	err := s.db.Where("handle = ?", handle).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", handle, err)
	}
	return &sess, nil
}

// SetRemoteID stores the dialogue service session id.
func (s *Store) SetRemoteID(id uint, remoteID string) error {
	return s.update(id, "set remote id", map[string]interface{}{
		"remote_id":     remoteID,
		"last_activity": s.now(),
	})
}

// ClearRemoteID forgets the dialogue service session id.
func (s *Store) ClearRemoteID(id uint) error {
	return s.update(id, "clear remote id", map[string]interface{}{"remote_id": ""})
}

// RemoteID returns the stored dialogue service session id.
func (s *Store) RemoteID(id uint) (string, bool, error) {
	var sess models.IntakeSession
	if err := s.db.Select("remote_id").First(&sess, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, ErrNotFound
		}
		return "", false, fmt.Errorf("store: remote id: %w", err)
	}
	return sess.RemoteID, sess.RemoteID != "", nil
}

// SetPhase records the last phase reported for the session.
func (s *Store) SetPhase(id uint, phase string) error {
	return s.update(id, "set phase", map[string]interface{}{"phase": phase})
}

// Touch refreshes the session's activity timestamp.
func (s *Store) Touch(id uint) error {
	return s.update(id, "touch", map[string]interface{}{"last_activity": s.now()})
}

// Complete marks an active session completed.
func (s *Store) Complete(id uint) error {
	return s.finish(id, models.StatusCompleted)
}

// Abandon marks an active session abandoned, as when the user starts over.
func (s *Store) Abandon(id uint) error {
	return s.finish(id, models.StatusAbandoned)
}

func (s *Store) finish(id uint, status string) error {
	now := s.now()
	result := s.db.Model(&models.IntakeSession{}).
		Where("id = ? AND status = ?", id, models.StatusActive).
		Updates(map[string]interface{}{
			"status":        status,
			"completed_at":  now,
			"last_activity": now,
		})
	if result.Error != nil {
		return fmt.Errorf("store: mark %s: %w", status, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: mark %s: session %d: %w", status, id, ErrNotActive)
	}
	return nil
}

func (s *Store) update(id uint, op string, fields map[string]interface{}) error {
	result := s.db.Model(&models.IntakeSession{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("store: %s: %w", op, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: %s: session %d: %w", op, id, ErrNotFound)
	}
	return nil
}

// RecordMessage appends msg to the session's log.
func (s *Store) RecordMessage(id uint, msg intake.Message) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var maxSeq int
		if err := tx.Model(&models.IntakeMessage{}).
			Where("session_id = ?", id).
			Select("COALESCE(MAX(sequence), 0)").Scan(&maxSeq).Error; err != nil {
			return fmt.Errorf("store: next sequence: %w", err)
		}
		seq := maxSeq + 1
		if seq > s.maxTurns {
			return fmt.Errorf("%w (%d) for session %d", ErrMaxTurns, s.maxTurns, id)
		}

		at := msg.At
		if at.IsZero() {
			at = s.now()
		}
		row := models.IntakeMessage{
			SessionID: id,
			Sequence:  seq,
			Author:    string(msg.Author),
			Kind:      string(msg.Kind),
			Payload:   msg.Payload,
			CreatedAt: at,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("store: record message: %w", err)
		}
		if err := tx.Model(&models.IntakeSession{}).Where("id = ?", id).
			Update("last_activity", at).Error; err != nil {
			return fmt.Errorf("store: record message: %w", err)
		}
		return nil
	})
}

// History returns a session's messages ordered by sequence.
func (s *Store) History(id uint) ([]models.IntakeMessage, error) {
	var msgs []models.IntakeMessage
	if err := s.db.Where("session_id = ?", id).Order("sequence").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("store: history: %w", err)
	}
	return msgs, nil
}

// ListOpts filters List.
type ListOpts struct {
	Status string
	Source string
	Limit  int
}

// List returns sessions, most recent first.
func (s *Store) List(opts ListOpts) ([]models.IntakeSession, error) {
	q := s.db.Model(&models.IntakeSession{})
	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}
	if opts.Source != "" {
		q = q.Where("source = ?", opts.Source)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	var out []models.IntakeSession
	if err := q.Order("last_activity DESC, id DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return out, nil
}

// Prune deletes finished sessions, and their messages, whose last activity
// is older than keepDays. Active sessions are never pruned.
func (s *Store) Prune(keepDays int) (int64, error) {
	if keepDays <= 0 {
		return 0, fmt.Errorf("store: prune: keep days must be positive, got %d", keepDays)
	}
	cutoff := s.now().AddDate(0, 0, -keepDays)

	var deleted int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		old := tx.Model(&models.IntakeSession{}).Select("id").
			Where("status <> ? AND last_activity < ?", models.StatusActive, cutoff)

		if err := tx.Where("session_id IN (?)", old).Delete(&models.IntakeMessage{}).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		result := tx.Where("status <> ? AND last_activity < ?", models.StatusActive, cutoff).
			Delete(&models.IntakeSession{})
		if result.Error != nil {
			return fmt.Errorf("delete sessions: %w", result.Error)
		}
		deleted = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: prune: %w", err)
	}
	return deleted, nil
}
