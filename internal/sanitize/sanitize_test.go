package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeDisabledReturnsInput(t *testing.T) {
	s := New(false)

	malformed := `<attachment id="1"title="x">body`
	assert.Equal(t, malformed, s.Sanitize(malformed))
}

func TestSanitizeRepairsAttributeSpacing(t *testing.T) {
	s := New(true)

	in := `before <attachment id="1"title="x"name="y">body</attachment> after`
	want := `before <attachment id="1" title="x" name="y">body</attachment> after`
	assert.Equal(t, want, s.Sanitize(in))
}

func TestSanitizeInsertsMissingCloserBeforeSibling(t *testing.T) {
	s := New(true)

	in := `<attachment id="1">first<snippet lang="go">second`
	want := `<attachment id="1">first</attachment><snippet lang="go">second</snippet>`
	assert.Equal(t, want, s.Sanitize(in))
}

func TestSanitizeClosesOpenTagAtEndOfInput(t *testing.T) {
	s := New(true)

	assert.Equal(t, `<snippet>code</snippet>`, s.Sanitize(`<snippet>code`))
}

func TestSanitizeNoOpOnWellFormedText(t *testing.T) {
	s := New(true)

	cases := []string{
		"",
		"plain text without any tags",
		`<attachment id="1" title="x">body</attachment>`,
		`a < b and b > c`,
		`math: 1<2`,
		`self closing <snippet lang="go"/> stays`,
		"tag split across\n<not a tag",
	}
	for _, text := range cases {
		assert.Equal(t, text, s.Sanitize(text), "input: %q", text)
	}
}

func TestSanitizeLeavesUnknownTagsAlone(t *testing.T) {
	s := New(true)

	in := `<div class="a"id="b">unclosed <p>html`
	assert.Equal(t, in, s.Sanitize(in))
}

func TestSanitizeIdempotent(t *testing.T) {
	s := New(true)

	cases := []string{
		`<attachment id="1"title="x">body`,
		`<attachment>a<snippet>b`,
		`<tool_call name="run"args="{}"/> trailing`,
		`well formed <snippet>ok</snippet> text`,
		`quoted '>' inside: <attachment note="a>b">x`,
	}
	for _, text := range cases {
		once := s.Sanitize(text)
		twice := s.Sanitize(once)
		assert.Equal(t, once, twice, "input: %q", text)
	}
}

func TestSanitizeDoesNotTouchSurroundingText(t *testing.T) {
	s := New(true)

	in := "  spacing,  punctuation!? and unicode éé <attachment a=\"1\"b=\"2\">x</attachment> tail  "
	out := s.Sanitize(in)
	assert.Contains(t, out, "  spacing,  punctuation!? and unicode éé ")
	assert.Contains(t, out, " tail  ")
}
