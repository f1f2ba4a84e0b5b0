// Package question describes the question the dialogue service is currently
// asking and, per question type, how an answer is rendered, validated and
// encoded for the wire.
package question

import (
	"strings"

	"github.com/zulandar/intake/internal/capture"
)

// Type is the tag that selects control, validator and encoder.
type Type string

const (
	TypeText        Type = "text"
	TypeEmail       Type = "email"
	TypePhone       Type = "phone"
	TypeZipcode     Type = "zipcode"
	TypeName        Type = "name"
	TypeCity        Type = "city"
	TypeDate        Type = "date"
	TypeNumber      Type = "number"
	TypeRadio       Type = "radio"
	TypeCheckbox    Type = "checkbox"
	TypeMultiselect Type = "multiselect"
	TypeSignature   Type = "signature"
)

// Normalize maps unknown or empty tags onto TypeText.
func (t Type) Normalize() Type {
	if _, ok := table[Type(strings.ToLower(string(t)))]; ok {
		return Type(strings.ToLower(string(t)))
	}
	return TypeText
}

// Question is one question as received from the service. It is never
// modified after decoding; the next question replaces it.
type Question struct {
	Text        string   `json:"question"`
	Type        Type     `json:"type"`
	Options     []string `json:"options,omitempty"`
	MinRequired *int     `json:"minRequired,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
}

// Kind returns the normalized type of q.
func (q Question) Kind() Type {
	return q.Type.Normalize()
}

// Required returns how many options a checkbox question needs, defaulting to 1.
func (q Question) Required() int {
	if q.MinRequired == nil || *q.MinRequired < 1 {
		return 1
	}
	return *q.MinRequired
}

// HasOption reports whether v is one of the offered options.
func (q Question) HasOption(v string) bool {
	for _, o := range q.Options {
		if o == v {
			return true
		}
	}
	return false
}

// Answer is the UI state collected for the active question.
type Answer struct {
	// Text is the free-text box, also used by date and number controls.
	Text string
	// Selected holds chosen options in the order they were picked.
	Selected []string
	// Signature is set once the signature pad produced an image.
	Signature *capture.Artifact
	// Audio is a base64 WAV payload; only meaningful before a session exists.
	Audio string
}

// Choice returns the single selected option for radio questions, falling
// back to the text box for front ends that only collect text.
func (a Answer) Choice() string {
	if len(a.Selected) > 0 {
		return a.Selected[0]
	}
	return strings.TrimSpace(a.Text)
}

// Field names the validation error slot a question type reports into.
type Field string

const (
	FieldInput    Field = "input"
	FieldRadio    Field = "radio"
	FieldCheckbox Field = "checkbox"
)

// Control names the input control a front end should render.
type Control string

const (
	ControlText      Control = "text-input"
	ControlEmail     Control = "email-input"
	ControlTel       Control = "tel-input"
	ControlDate      Control = "date-input"
	ControlNumber    Control = "number-input"
	ControlRadio     Control = "radio-group"
	ControlCheckbox  Control = "checkbox-group"
	ControlSignature Control = "signature-pad"
)
