package testutils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingT struct {
	failed  bool
	message string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.failed = true
	r.message = fmt.Sprintf(format, args...)
}

func TestJSONAsserter_Defaults(t *testing.T) {
	opts := NewJSONAsserter(t).Options()

	assert.True(t, opts.IgnoreExtraKeys)
	assert.True(t, opts.AllowPresencePlaceholder)
	assert.False(t, opts.IgnoreArrayOrder)
	assert.Empty(t, opts.IgnoredFields)
}

func TestJSONAsserter_Diff(t *testing.T) {
	tests := []struct {
		name     string
		opts     []Option
		actual   string
		expected string
		match    bool
	}{
		{
			name:     "equal objects",
			actual:   `{"ok":true,"result":true}`,
			expected: `{"ok":true,"result":true}`,
			match:    true,
		},
		{
			name:     "different value",
			actual:   `{"ok":false}`,
			expected: `{"ok":true}`,
		},
		{
			name:     "extra keys ignored by default",
			actual:   `{"ok":true,"code":"Timeout"}`,
			expected: `{"ok":true}`,
			match:    true,
		},
		{
			name:     "extra keys detected when not ignored",
			opts:     []Option{WithIgnoreExtraKeys(false)},
			actual:   `{"ok":true,"code":"Timeout"}`,
			expected: `{"ok":true}`,
		},
		{
			name:     "presence placeholder",
			actual:   `{"at":"2025-01-01T00:00:00Z","to":"ACTIVE"}`,
			expected: `{"at":"<<PRESENCE>>","to":"ACTIVE"}`,
			match:    true,
		},
		{
			name:     "presence placeholder requires the key",
			actual:   `{"to":"ACTIVE"}`,
			expected: `{"at":"<<PRESENCE>>","to":"ACTIVE"}`,
		},
		{
			name:     "presence placeholder disabled",
			opts:     []Option{WithAllowPresencePlaceholder(false)},
			actual:   `{"at":"2025-01-01T00:00:00Z"}`,
			expected: `{"at":"<<PRESENCE>>"}`,
		},
		{
			name:     "root arrays",
			actual:   `[{"id":"AA:BB"},{"id":"CC:DD"}]`,
			expected: `[{"id":"AA:BB"},{"id":"CC:DD"}]`,
			match:    true,
		},
		{
			name:     "array order significant by default",
			actual:   `[{"id":"CC:DD"},{"id":"AA:BB"}]`,
			expected: `[{"id":"AA:BB"},{"id":"CC:DD"}]`,
		},
		{
			name:     "array order ignored",
			opts:     []Option{WithIgnoreArrayOrder(true)},
			actual:   `{"devices":[{"id":"CC:DD"},{"id":"AA:BB"}]}`,
			expected: `{"devices":[{"id":"AA:BB"},{"id":"CC:DD"}]}`,
			match:    true,
		},
		{
			name:     "ignored fields at any depth",
			opts:     []Option{WithIgnoredFields("at"), WithIgnoreExtraKeys(false)},
			actual:   `{"history":[{"at":"x","to":"CLOSED"}],"at":"y"}`,
			expected: `{"history":[{"at":"z","to":"CLOSED"}]}`,
			match:    true,
		},
		{
			name:     "invalid actual",
			actual:   `{`,
			expected: `{}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff := NewJSONAsserter(t).WithOptions(tt.opts...).Diff(tt.actual, tt.expected)
			if tt.match {
				assert.Empty(t, diff)
			} else {
				assert.NotEmpty(t, diff)
			}
		})
	}
}

func TestJSONAsserter_AssertReportsFailure(t *testing.T) {
	rec := &recordingT{}

	NewJSONAsserter(rec).AssertValue(map[string]any{"ok": false}, `{"ok":true}`)

	assert.True(t, rec.failed)
	assert.Contains(t, rec.message, "JSON assertion failed")
}

func TestTextAsserter_Diff(t *testing.T) {
	tests := []struct {
		name     string
		opts     []TextOption
		actual   string
		expected string
		match    bool
	}{
		{name: "identical", actual: "a\nb", expected: "a\nb", match: true},
		{name: "different", actual: "a\nc", expected: "a\nb"},
		{name: "trim space", opts: []TextOption{WithTrimSpace(true)}, actual: "\n a\n", expected: "a", match: true},
		{name: "trailing whitespace", opts: []TextOption{WithIgnoreTrailingWhitespace(true)}, actual: "a  \nb\t", expected: "a\nb", match: true},
		{name: "empty lines", opts: []TextOption{WithIgnoreEmptyLines(true)}, actual: "a\n\n\nb", expected: "a\nb", match: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diff := NewTextAsserter(t).WithOptions(tt.opts...).Diff(tt.actual, tt.expected)
			if tt.match {
				assert.Empty(t, diff)
			} else {
				assert.Contains(t, diff, "--- expected")
			}
		})
	}
}

func TestTextAsserter_Colors(t *testing.T) {
	diff := NewTextAsserter(t).WithOptions(WithEnableColors(true)).Diff("a b", "a  b")

	assert.Contains(t, diff, "\x1b[")
	assert.Contains(t, diff, "a·b")
}

func TestTextAsserter_AssertReportsFailure(t *testing.T) {
	rec := &recordingT{}

	NewTextAsserter(rec).Assert("actual", "expected")

	assert.True(t, rec.failed)
	assert.Contains(t, rec.message, "Text assertion failed")
}
