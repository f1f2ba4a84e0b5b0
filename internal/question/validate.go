package question

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Default bounds for free-text answers.
const (
	TextMinLength = 1
	TextMaxLength = 500
)

var (
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern   = regexp.MustCompile(`^[+]?[1-9]\d{0,15}$`)
	phoneStrip     = regexp.MustCompile(`[\s\-().]`)
	zipcodePattern = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	namePattern    = regexp.MustCompile(`^[a-zA-Z\s\-'.]+$`)
)

// earliestDate is the lower bound for date answers.
var earliestDate = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// dateLayouts are tried in order when parsing a date answer.
var dateLayouts = []string{"2006-01-02", time.RFC3339, "01/02/2006"}

// ValidationError is a user-displayable rejection of an answer.
type ValidationError struct {
	Field   Field  `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(field Field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

// inputError converts a validator message into an error under the input slot.
func inputError(msg string) error {
	if msg == "" {
		return nil
	}
	return invalid(FieldInput, msg)
}

// Email checks for a conventional local@domain.tld address.
func Email(v string) string {
	if v == "" {
		return "Email is required"
	}
	if !emailPattern.MatchString(v) {
		return "Please enter a valid email address"
	}
	return ""
}

// Phone accepts at least ten digits once common separators are removed.
func Phone(v string) string {
	if v == "" {
		return "Phone number is required"
	}
	clean := phoneStrip.ReplaceAllString(v, "")
	if len(clean) < 10 {
		return "Phone number must be at least 10 digits"
	}
	if !phonePattern.MatchString(clean) {
		return "Please enter a valid phone number"
	}
	return ""
}

// Zipcode accepts NNNNN or NNNNN-NNNN.
func Zipcode(v string) string {
	if v == "" {
		return "Zip code is required"
	}
	if !zipcodePattern.MatchString(v) {
		return "Please enter a valid zip code (12345 or 12345-6789)"
	}
	return ""
}

// Name validates a person's name.
func Name(v string) string {
	return properNoun(v, "Name", "Name")
}

// City validates a city name.
func City(v string) string {
	return properNoun(v, "City", "City name")
}

func properNoun(v, label, long string) string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return label + " is required"
	}
	if utf8.RuneCountInString(trimmed) < 2 {
		return long + " must be at least 2 characters"
	}
	if !namePattern.MatchString(v) {
		return long + " can only contain letters, spaces, hyphens, and apostrophes"
	}
	return ""
}

// ParseDate parses a date answer in any accepted layout.
func ParseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", v)
}

// Date rejects dates after today or before 1900-01-01. Comparison is by
// calendar day in now's location.
func Date(v string, now time.Time) string {
	if strings.TrimSpace(v) == "" {
		return "Date is required"
	}
	d, err := ParseDate(v)
	if err != nil {
		return "Please enter a valid date"
	}
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if day.After(today) {
		return "Date cannot be in the future"
	}
	if day.Before(earliestDate) {
		return "Please enter a valid date"
	}
	return ""
}

// Number requires a float within the optional inclusive bounds.
func Number(v string, min, max *float64) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "This field is required"
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return "Please enter a valid number"
	}
	if min != nil && n < *min {
		return "Value must be at least " + formatNumber(*min)
	}
	if max != nil && n > *max {
		return "Value must be at most " + formatNumber(*max)
	}
	return ""
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Text bounds the trimmed length of a free-text answer.
func Text(v string, minLen, maxLen int) string {
	n := utf8.RuneCountInString(strings.TrimSpace(v))
	if n == 0 {
		return "This field is required"
	}
	if n < minLen {
		return fmt.Sprintf("Must be at least %d characters", minLen)
	}
	if n > maxLen {
		return fmt.Sprintf("Must be less than %d characters", maxLen)
	}
	return ""
}

// Radio requires exactly one selection.
func Radio(selected string) string {
	if selected == "" {
		return "Please select an option"
	}
	return ""
}

// Checkbox requires at least minRequired selections.
func Checkbox(selected []string, minRequired int) string {
	if minRequired < 1 {
		minRequired = 1
	}
	if len(selected) < minRequired {
		plural := ""
		if minRequired > 1 {
			plural = "s"
		}
		return fmt.Sprintf("Please select at least %d option%s", minRequired, plural)
	}
	return ""
}

// Selections rejects repeated selections and, when options is non-empty,
// selections that are not among them.
func Selections(selected, options []string) string {
	seen := make(map[string]bool, len(selected))
	for _, v := range selected {
		if seen[v] {
			return fmt.Sprintf("%q was selected more than once", v)
		}
		seen[v] = true
		if len(options) > 0 && !containsString(options, v) {
			return fmt.Sprintf("%q is not one of the options", v)
		}
	}
	return ""
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
