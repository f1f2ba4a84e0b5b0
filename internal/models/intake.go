package models

import "time"

// IntakeSession is one intake conversation as seen by a front end. A row is
// created when a conversation opens; RemoteID holds the dialogue service's
// session id while the conversation is in progress.
type IntakeSession struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	Handle       string    `gorm:"size:36;not null;uniqueIndex"`
	RemoteID     string    `gorm:"size:128;index"`
	Source       string    `gorm:"size:16;not null;index"` // "cli", "web", "slack", "discord"
	UserName     string    `gorm:"size:64"`
	ThreadKey    string    `gorm:"size:256;index"` // "channelID:threadID" for chat bridges
	Phase        string    `gorm:"size:32"`
	Status       string    `gorm:"size:16;default:active;index"` // active, completed, abandoned, expired
	LastActivity time.Time `gorm:"index"`
	CreatedAt    time.Time
	CompletedAt  *time.Time

	Messages []IntakeMessage `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

// IntakeMessage is one entry of a session's conversation log.
type IntakeMessage struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	SessionID uint   `gorm:"not null;index:idx_session_seq,unique"`
	Sequence  int    `gorm:"not null;index:idx_session_seq,unique"`
	Author    string `gorm:"size:8;not null"`  // "user" or "bot"
	Kind      string `gorm:"size:16;not null"` // "text", "audio-ref", "image-ref"
	Payload   string `gorm:"type:mediumtext;not null"`
	CreatedAt time.Time
}

// Session status values.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusAbandoned = "abandoned"
	StatusExpired   = "expired"
)
