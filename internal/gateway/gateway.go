// Package gateway is the client side of the remote dialogue service: the
// Gateway contract, its HTTP implementation and the call policies layered
// around it.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zulandar/intake/internal/question"
)

// Endpoint paths on the dialogue service.
const (
	EndpointStart   = "/load-form"
	EndpointAdvance = "/next"
	EndpointClarify = "/followup-step"
)

// Gateway is the set of remote operations a session controller needs. Every
// call is made at most once; no implementation retries on its own.
type Gateway interface {
	Start(ctx context.Context, req StartRequest) (*Response, error)
	Advance(ctx context.Context, sessionID, answer string) (*Response, error)
	Clarify(ctx context.Context, sessionID, questionText, answer string) (*Response, error)
}

// StartRequest opens a session from a typed or spoken description.
type StartRequest struct {
	Description      *string `json:"description"`
	VoiceDescription *string `json:"voice_description,omitempty"`
}

// TextStart builds a StartRequest for a typed description.
func TextStart(description string) StartRequest {
	return StartRequest{Description: &description}
}

// VoiceStart builds a StartRequest carrying a base64 WAV payload.
func VoiceStart(audio string) StartRequest {
	return StartRequest{VoiceDescription: &audio}
}

type advanceRequest struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
}

type clarifyRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
}

// Response is the union of every field the service may return. Absent
// fields are zero.
type Response struct {
	SessionID    string             `json:"session_id,omitempty"`
	Phase        string             `json:"current_phase,omitempty"`
	NextQuestion *question.Question `json:"next_question,omitempty"`
	Summary      string             `json:"summary,omitempty"`
	Error        Message            `json:"error,omitempty"`
}

// Outcome classifies a response.
type Outcome int

const (
	// OutcomeNone means the body carried none of the known result fields.
	OutcomeNone Outcome = iota
	OutcomeQuestion
	OutcomeSummary
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeQuestion:
		return "question"
	case OutcomeSummary:
		return "summary"
	case OutcomeError:
		return "error"
	default:
		return "none"
	}
}

// Outcome reports what the response asks the controller to do. A summary
// takes precedence over a next question, and either takes precedence over a
// domain error.
func (r *Response) Outcome() Outcome {
	switch {
	case r == nil:
		return OutcomeNone
	case r.Summary != "":
		return OutcomeSummary
	case r.NextQuestion != nil:
		return OutcomeQuestion
	case r.Error != "":
		return OutcomeError
	default:
		return OutcomeNone
	}
}

// Message is a domain error reported by the service. Strings are kept as
// is; false and 0 mean no error, like null and ""; any other JSON value is
// kept in its compact encoding.
type Message string

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*m = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = Message(s)
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v {
	case false, float64(0):
		*m = ""
		return nil
	}
	compact, err := json.Marshal(v)
	if err != nil {
		return err
	}
	*m = Message(compact)
	return nil
}

// TransportError is returned when a call fails before a decodable response
// body was obtained.
type TransportError struct {
	Endpoint string
	Status   int
	Err      error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("gateway: %s: status %d: %v", e.Endpoint, e.Status, e.Err)
	}
	return fmt.Sprintf("gateway: %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
