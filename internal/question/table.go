package question

import (
	"strings"
	"time"
)

// SignatureMode selects what a signature answer sends upstream.
type SignatureMode string

const (
	// SignatureSentinel sends a fixed marker string.
	SignatureSentinel SignatureMode = "sentinel"
	// SignatureImage sends the captured image as a data URL.
	SignatureImage SignatureMode = "image"
)

// SignatureMarker is the answer sent for a signature in sentinel mode.
const SignatureMarker = "[Signature submitted]"

// SignatureEcho is the user message logged for a sentinel-mode signature.
const SignatureEcho = "✅ Signature submitted"

// EchoKind mirrors the conversation message kinds a codec can produce.
type EchoKind string

const (
	EchoText  EchoKind = "text"
	EchoImage EchoKind = "image-ref"
)

// Echo is what the user's turn looks like in the conversation log.
type Echo struct {
	Kind    EchoKind
	Payload string
}

// Encoded is an answer ready for the wire together with its log echo.
type Encoded struct {
	Answer string
	Echo   Echo
}

// Codec carries deployment options that affect encoding.
type Codec struct {
	Signature SignatureMode
}

// Behavior is one row of the type table.
type Behavior struct {
	Control     Control
	Placeholder string
	Field       Field
	validate    func(a Answer, q Question, c Codec, now time.Time) error
	encode      func(a Answer, q Question, c Codec) Encoded
}

// Validate applies the row's rule. The returned error, if any, is a
// *ValidationError.
func (s Behavior) Validate(a Answer, q Question, c Codec, now time.Time) error {
	return s.validate(a, q, c, now)
}

// Encode converts a validated answer into its wire form.
func (s Behavior) Encode(a Answer, q Question, c Codec) Encoded {
	return s.encode(a, q, c)
}

// Lookup returns the table row for t. Unknown types get the text row.
func Lookup(t Type) Behavior {
	return table[t.Normalize()]
}

func scalar(control Control, placeholder string, check func(string) string) Behavior {
	return Behavior{
		Control:     control,
		Placeholder: placeholder,
		Field:       FieldInput,
		validate: func(a Answer, _ Question, _ Codec, _ time.Time) error {
			return inputError(check(a.Text))
		},
		encode: encodeScalar,
	}
}

func encodeScalar(a Answer, _ Question, _ Codec) Encoded {
	return Encoded{Answer: strings.TrimSpace(a.Text), Echo: Echo{Kind: EchoText, Payload: a.Text}}
}

func multi() Behavior {
	return Behavior{
		Control: ControlCheckbox,
		Field:   FieldCheckbox,
		validate: func(a Answer, q Question, _ Codec, _ time.Time) error {
			if msg := Selections(a.Selected, q.Options); msg != "" {
				return invalid(FieldCheckbox, msg)
			}
			if msg := Checkbox(a.Selected, q.Required()); msg != "" {
				return invalid(FieldCheckbox, msg)
			}
			return nil
		},
		encode: func(a Answer, _ Question, _ Codec) Encoded {
			joined := strings.Join(a.Selected, ", ")
			return Encoded{Answer: joined, Echo: Echo{Kind: EchoText, Payload: joined}}
		},
	}
}

var table = map[Type]Behavior{
	TypeText:    scalar(ControlText, "Type your answer...", func(v string) string { return Text(v, TextMinLength, TextMaxLength) }),
	TypeEmail:   scalar(ControlEmail, "Enter your email address...", Email),
	TypePhone:   scalar(ControlTel, "Enter your phone number...", Phone),
	TypeZipcode: scalar(ControlText, "Enter zip code (12345 or 12345-6789)...", Zipcode),
	TypeName:    scalar(ControlText, "Enter your full name...", Name),
	TypeCity:    scalar(ControlText, "Enter your city...", City),
	TypeNumber: {
		Control:     ControlNumber,
		Placeholder: "Enter a number...",
		Field:       FieldInput,
		validate: func(a Answer, q Question, _ Codec, _ time.Time) error {
			return inputError(Number(a.Text, q.Min, q.Max))
		},
		encode: encodeScalar,
	},
	TypeDate: {
		Control:     ControlDate,
		Placeholder: "Select date...",
		Field:       FieldInput,
		validate: func(a Answer, _ Question, _ Codec, now time.Time) error {
			return inputError(Date(a.Text, now))
		},
		encode: func(a Answer, _ Question, _ Codec) Encoded {
			iso := strings.TrimSpace(a.Text)
			if d, err := ParseDate(iso); err == nil {
				iso = d.Format("2006-01-02")
			}
			return Encoded{Answer: iso, Echo: Echo{Kind: EchoText, Payload: iso}}
		},
	},
	TypeRadio: {
		Control: ControlRadio,
		Field:   FieldRadio,
		validate: func(a Answer, q Question, _ Codec, _ time.Time) error {
			choice := a.Choice()
			if msg := Radio(choice); msg != "" {
				return invalid(FieldRadio, msg)
			}
			if len(q.Options) > 0 && !q.HasOption(choice) {
				return invalid(FieldRadio, Radio(""))
			}
			return nil
		},
		encode: func(a Answer, _ Question, _ Codec) Encoded {
			choice := a.Choice()
			return Encoded{Answer: choice, Echo: Echo{Kind: EchoText, Payload: choice}}
		},
	},
	TypeCheckbox:    multi(),
	TypeMultiselect: multi(),
	TypeSignature: {
		Control: ControlSignature,
		Field:   FieldInput,
		validate: func(a Answer, _ Question, c Codec, _ time.Time) error {
			if c.Signature == SignatureImage && a.Signature == nil {
				return invalid(FieldInput, "Please sign before submitting")
			}
			return nil
		},
		encode: func(a Answer, _ Question, c Codec) Encoded {
			if c.Signature == SignatureImage && a.Signature != nil {
				ref := a.Signature.DataURL()
				return Encoded{Answer: ref, Echo: Echo{Kind: EchoImage, Payload: ref}}
			}
			return Encoded{Answer: SignatureMarker, Echo: Echo{Kind: EchoText, Payload: SignatureEcho}}
		},
	},
}
