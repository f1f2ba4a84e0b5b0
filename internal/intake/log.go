package intake

import (
	"log"
	"sync"
	"time"
)

// Author identifies who produced a conversation message.
type Author string

const (
	AuthorUser Author = "user"
	AuthorBot  Author = "bot"
)

// Kind is the payload type of a conversation message.
type Kind string

const (
	KindText  Kind = "text"
	KindAudio Kind = "audio-ref"
	KindImage Kind = "image-ref"
)

// Message is one entry of the conversation.
type Message struct {
	Author  Author    `json:"author"`
	Kind    Kind      `json:"kind"`
	Payload string    `json:"payload"`
	At      time.Time `json:"at"`
}

// Recorder mirrors appended messages somewhere durable.
type Recorder interface {
	Record(msg Message) error
}

// Log is the append-only conversation record. Entries are never edited,
// removed or reordered.
type Log struct {
	rec Recorder

	mu   sync.RWMutex
	msgs []Message
}

// NewLog creates a log. rec may be nil.
func NewLog(rec Recorder) *Log {
	return &Log{rec: rec}
}

// Append adds msg to the end of the log. Recorder failures are logged and
// do not affect the in-memory log.
func (l *Log) Append(msg Message) {
	l.mu.Lock()
	l.msgs = append(l.msgs, msg)
	l.mu.Unlock()

	if l.rec != nil {
		if err := l.rec.Record(msg); err != nil {
			log.Printf("intake: record %s message: %v", msg.Author, err)
		}
	}
}

// All returns a copy of every message in order.
func (l *Log) All() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Message, len(l.msgs))
	copy(out, l.msgs)
	return out
}

// Len returns the number of messages.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.msgs)
}
