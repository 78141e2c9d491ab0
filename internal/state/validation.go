package state

import (
	"strings"
	"time"
)

// TimestampLayout is the reversible form dates are displayed and edited in.
const TimestampLayout = "2006-01-02 15:04:05 -0700"

// Accepted date inputs, tried in order. Layouts without an offset are read as UTC.
var timestampLayouts = []string{
	TimestampLayout,
	"2006-01-02 15:04:05-0700",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// FormatTimestamp renders t in TimestampLayout, keeping its offset.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// ParseTimestamp parses a user supplied date. Surrounding whitespace is ignored.
func ParseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, invalid(FieldAuthorDate, raw, "expected YYYY-MM-DD[ HH:MM[:SS][ ±HHMM]]")
}

// ValidateEmail applies the address rules used for author and committer emails:
// exactly one '@' with both sides non-empty, a domain containing a dot that is
// neither first nor last, and no spaces.
func ValidateEmail(email string) error {
	return validateEmail(FieldAuthorEmail, email)
}

func validateEmail(f Field, email string) error {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return invalid(f, email, "must contain exactly one '@' with text on both sides")
	}
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return invalid(f, email, "domain must contain a dot that is not at its start or end")
	}
	if strings.ContainsAny(email, " \t\n<>") {
		return invalid(f, email, "must not contain spaces or angle brackets")
	}
	return nil
}

func validateName(f Field, name string) error {
	if strings.TrimSpace(name) == "" {
		return invalid(f, name, "must not be empty")
	}
	if strings.ContainsAny(name, "<>\n") {
		return invalid(f, name, "must not contain angle brackets or newlines")
	}
	return nil
}

// ParseValue validates raw user input for f and converts it to a Value.
// Messages are normalised to end with exactly one newline.
func ParseValue(f Field, raw string) (Value, error) {
	switch f {
	case FieldMessage:
		msg := strings.TrimRight(raw, "\r\n\t ")
		if strings.TrimSpace(msg) == "" {
			return Value{}, invalid(f, raw, "must not be empty")
		}
		return TextValue(msg + "\n"), nil
	case FieldAuthorName, FieldCommitterName:
		name := strings.TrimSpace(raw)
		if err := validateName(f, name); err != nil {
			return Value{}, err
		}
		return TextValue(name), nil
	case FieldAuthorEmail, FieldCommitterEmail:
		email := strings.TrimSpace(raw)
		if err := validateEmail(f, email); err != nil {
			return Value{}, err
		}
		return TextValue(email), nil
	case FieldAuthorDate, FieldCommitterDate:
		t, err := ParseTimestamp(raw)
		if err != nil {
			if verr, ok := err.(*ValidationError); ok {
				verr.Field = f
			}
			return Value{}, err
		}
		return DateValue(t), nil
	}
	return Value{}, invalid(f, raw, "field is not editable")
}
