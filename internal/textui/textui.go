// Package textui renders questions and conversation messages as plain text
// and parses typed replies back into answers. It backs the terminal chat and
// the chat platform bridge, where there are no form controls.
package textui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zulandar/intake/internal/intake"
	"github.com/zulandar/intake/internal/question"
)

// RenderQuestion formats q with numbered options and an input hint.
func RenderQuestion(q *question.Question) string {
	if q == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(q.Text)
	switch q.Kind() {
	case question.TypeRadio, question.TypeCheckbox, question.TypeMultiselect:
		for i, opt := range q.Options {
			fmt.Fprintf(&b, "\n  %d) %s", i+1, opt)
		}
	}
	if h := Hint(q); h != "" {
		b.WriteString("\n")
		b.WriteString(h)
	}
	return b.String()
}

// Hint describes the expected reply format for q, or "" for free text.
func Hint(q *question.Question) string {
	if q == nil {
		return ""
	}
	switch q.Kind() {
	case question.TypeRadio:
		return "(reply with one option number or its text)"
	case question.TypeCheckbox, question.TypeMultiselect:
		if n := q.Required(); n > 1 {
			return fmt.Sprintf("(choose at least %d, comma separated)", n)
		}
		return "(choose one or more, comma separated)"
	case question.TypeDate:
		return "(date as YYYY-MM-DD)"
	case question.TypeNumber:
		switch {
		case q.Min != nil && q.Max != nil:
			return fmt.Sprintf("(number between %s and %s)", num(*q.Min), num(*q.Max))
		case q.Min != nil:
			return fmt.Sprintf("(number, at least %s)", num(*q.Min))
		case q.Max != nil:
			return fmt.Sprintf("(number, at most %s)", num(*q.Max))
		}
		return "(number)"
	case question.TypeSignature:
		return "(reply with anything to sign)"
	}
	return ""
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// RenderMessage formats one log entry as "who: text".
func RenderMessage(m intake.Message) string {
	who := "bot"
	if m.Author == intake.AuthorUser {
		who = "you"
	}
	switch m.Kind {
	case intake.KindAudio:
		return who + ": [voice message]"
	case intake.KindImage:
		return who + ": [signature image]"
	}
	return who + ": " + m.Payload
}

// ParseReply turns a typed reply into an answer for q. A nil q means no
// question is active, and the reply is the opening description. Options may
// be given by number or by case-insensitive text; an unknown option is a
// *question.ValidationError naming it.
func ParseReply(q *question.Question, reply string) (question.Answer, error) {
	if q == nil {
		return question.Answer{Text: reply}, nil
	}
	switch q.Kind() {
	case question.TypeRadio:
		trimmed := strings.TrimSpace(reply)
		if trimmed == "" {
			return question.Answer{}, nil
		}
		opt, ok := resolve(q.Options, trimmed)
		if !ok {
			return question.Answer{}, notAnOption(question.FieldRadio, trimmed)
		}
		return question.Answer{Selected: []string{opt}}, nil

	case question.TypeCheckbox, question.TypeMultiselect:
		var selected []string
		for _, part := range strings.Split(reply, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			opt, ok := resolve(q.Options, part)
			if !ok {
				return question.Answer{}, notAnOption(question.FieldCheckbox, part)
			}
			if !contains(selected, opt) {
				selected = append(selected, opt)
			}
		}
		return question.Answer{Selected: selected}, nil
	}
	return question.Answer{Text: reply}, nil
}

func notAnOption(field question.Field, v string) error {
	return &question.ValidationError{Field: field, Message: fmt.Sprintf("%q is not one of the options", v)}
}

// resolve maps a 1-based index or option text onto the canonical option.
func resolve(options []string, s string) (string, bool) {
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= len(options) {
		return options[n-1], true
	}
	for _, opt := range options {
		if strings.EqualFold(opt, s) {
			return opt, true
		}
	}
	return "", false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
