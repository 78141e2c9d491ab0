package state

import (
	"fmt"
	"strings"
	"time"
)

// Field names one editable piece of commit metadata.
type Field int

const (
	FieldMessage Field = iota
	FieldAuthorName
	FieldAuthorEmail
	FieldAuthorDate
	FieldCommitterName
	FieldCommitterEmail
	FieldCommitterDate
)

var fieldNames = [...]string{
	FieldMessage:        "message",
	FieldAuthorName:     "author_name",
	FieldAuthorEmail:    "author_email",
	FieldAuthorDate:     "author_date",
	FieldCommitterName:  "committer_name",
	FieldCommitterEmail: "committer_email",
	FieldCommitterDate:  "committer_date",
}

// Fields lists every editable field in display order.
func Fields() []Field {
	return []Field{
		FieldMessage,
		FieldAuthorName, FieldAuthorEmail, FieldAuthorDate,
		FieldCommitterName, FieldCommitterEmail, FieldCommitterDate,
	}
}

func (f Field) String() string {
	if f < 0 || int(f) >= len(fieldNames) {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldNames[f]
}

// ParseField accepts the canonical name as well as dashed or dotted spellings
// ("author-name", "author.name").
func ParseField(s string) (Field, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("-", "_", ".", "_").Replace(norm)
	for i, name := range fieldNames {
		if name == norm {
			return Field(i), nil
		}
	}
	return 0, fmt.Errorf("unknown field %q", s)
}

func (f Field) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Field) UnmarshalText(b []byte) error {
	parsed, err := ParseField(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// IsDate reports whether the field holds a timestamp rather than text.
func (f Field) IsDate() bool {
	return f == FieldAuthorDate || f == FieldCommitterDate
}

// IsAuthor reports whether the field belongs to the author signature.
func (f Field) IsAuthor() bool {
	return f == FieldAuthorName || f == FieldAuthorEmail || f == FieldAuthorDate
}

// syncSource returns the author field a committer field follows under the
// author-to-committer sync policy.
func (f Field) syncSource() (Field, bool) {
	switch f {
	case FieldCommitterName:
		return FieldAuthorName, true
	case FieldCommitterEmail:
		return FieldAuthorEmail, true
	case FieldCommitterDate:
		return FieldAuthorDate, true
	}
	return 0, false
}

// Value is a field value: Text for names, emails and messages, When for dates.
type Value struct {
	Text string    `json:"text,omitempty"`
	When time.Time `json:"when"`
}

// TextValue wraps a text field value.
func TextValue(s string) Value {
	return Value{Text: s}
}

// DateValue wraps a timestamp field value.
func DateValue(t time.Time) Value {
	return Value{When: t}
}

// Equal compares two values at git's timestamp resolution.
func (v Value) Equal(o Value) bool {
	if v.Text != o.Text {
		return false
	}
	if v.When.IsZero() || o.When.IsZero() {
		return v.When.IsZero() == o.When.IsZero()
	}
	return sameInstant(v.When, o.When)
}

// Display renders the value the way the field is shown to users.
func (v Value) Display(f Field) string {
	if f.IsDate() {
		return FormatTimestamp(v.When)
	}
	if f == FieldMessage {
		return Summary(v.Text)
	}
	return v.Text
}

// FieldEdit is a sparse set of overrides for one commit.
type FieldEdit map[Field]Value

// Clone returns an independent copy.
func (e FieldEdit) Clone() FieldEdit {
	out := make(FieldEdit, len(e))
	for f, v := range e {
		out[f] = v
	}
	return out
}

// OriginalValue reads a field from the unedited commit.
func OriginalValue(c *OriginalCommit, f Field) Value {
	switch f {
	case FieldMessage:
		return TextValue(c.Message)
	case FieldAuthorName:
		return TextValue(c.Author.Name)
	case FieldAuthorEmail:
		return TextValue(c.Author.Email)
	case FieldAuthorDate:
		return DateValue(c.Author.When)
	case FieldCommitterName:
		return TextValue(c.Committer.Name)
	case FieldCommitterEmail:
		return TextValue(c.Committer.Email)
	case FieldCommitterDate:
		return DateValue(c.Committer.When)
	}
	return Value{}
}
