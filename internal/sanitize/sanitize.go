// Package sanitize repairs structurally malformed tagged markup the upstream
// model sometimes emits: quoted attributes concatenated without separating
// whitespace, and closing tags dropped before the next tag opens.
//
// The repair is a single left-to-right scan with an explicit open-tag stack,
// not a pattern rewrite. Tags in the targeted family do not nest; an open tag
// is implicitly terminated by the next family tag open or by end of input.
// Text outside targeted tags is copied through untouched, and the pass is
// idempotent: repaired output scans as well-formed and is returned unchanged.
package sanitize

import "strings"

// DefaultTags is the family of structured tags the upstream is known to
// mangle.
var DefaultTags = []string{"attachment", "snippet", "tool_call"}

// Sanitizer applies the tag-repair pass when enabled. A disabled sanitizer
// returns its input unchanged, which is the production default.
type Sanitizer struct {
	Enabled bool
	tags    map[string]struct{}
}

// New builds a sanitizer over the given tag family, falling back to
// DefaultTags when none are supplied.
func New(enabled bool, tags ...string) *Sanitizer {
	if len(tags) == 0 {
		tags = DefaultTags
	}
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return &Sanitizer{Enabled: enabled, tags: set}
}

// Sanitize repairs text when the sanitizer is enabled.
func (s *Sanitizer) Sanitize(text string) string {
	if s == nil || !s.Enabled {
		return text
	}
	return s.repair(text)
}

func (s *Sanitizer) repair(text string) string {
	var out strings.Builder
	out.Grow(len(text))

	var stack []string
	i := 0
	for i < len(text) {
		c := text[i]
		if c != '<' {
			out.WriteByte(c)
			i++
			continue
		}

		tag, ok := parseTag(text[i:])
		if !ok {
			out.WriteByte(c)
			i++
			continue
		}
		if _, known := s.tags[tag.name]; !known {
			out.WriteString(text[i : i+tag.length])
			i += tag.length
			continue
		}

		switch {
		case tag.closing:
			if len(stack) > 0 && stack[len(stack)-1] == tag.name {
				stack = stack[:len(stack)-1]
			}
			out.WriteString(text[i : i+tag.length])
		case tag.selfClosing:
			for len(stack) > 0 {
				out.WriteString("</" + stack[len(stack)-1] + ">")
				stack = stack[:len(stack)-1]
			}
			out.WriteString(tag.normalized(text[i : i+tag.length]))
		default:
			for len(stack) > 0 {
				out.WriteString("</" + stack[len(stack)-1] + ">")
				stack = stack[:len(stack)-1]
			}
			out.WriteString(tag.normalized(text[i : i+tag.length]))
			stack = append(stack, tag.name)
		}
		i += tag.length
	}

	for len(stack) > 0 {
		out.WriteString("</" + stack[len(stack)-1] + ">")
		stack = stack[:len(stack)-1]
	}

	return out.String()
}

type tagToken struct {
	name        string
	length      int
	closing     bool
	selfClosing bool
	// byte offsets, relative to the raw tag text, where a separating space
	// is missing between a closing quote and the next attribute name
	missingSpaces []int
}

// parseTag scans a candidate tag starting at the leading '<'. It returns
// ok=false when the run is not tag-shaped, leaving the text untouched.
func parseTag(s string) (tagToken, bool) {
	var t tagToken
	i := 1
	if i < len(s) && s[i] == '/' {
		t.closing = true
		i++
	}

	start := i
	for i < len(s) && isNameByte(s[i]) {
		i++
	}
	if i == start {
		return t, false
	}
	t.name = s[start:i]

	// Scan attributes up to the closing '>'. Track quote state so a '>'
	// inside a quoted value does not end the tag.
	inQuote := byte(0)
	for i < len(s) {
		c := s[i]
		if inQuote != 0 {
			if c == inQuote {
				inQuote = 0
				if i+1 < len(s) && isNameByte(s[i+1]) {
					t.missingSpaces = append(t.missingSpaces, i+1)
				}
			}
			i++
			continue
		}
		switch {
		case c == '"' || c == '\'':
			inQuote = c
			i++
		case c == '>':
			if i > 0 && s[i-1] == '/' {
				t.selfClosing = true
			}
			t.length = i + 1
			return t, true
		case c == '<' || c == '\n':
			// A new tag or line break before '>' means this was not a tag.
			return t, false
		default:
			i++
		}
	}
	return t, false
}

// normalized re-emits the raw tag text with the missing attribute separators
// inserted. Well-formed tags come back byte for byte.
func (t tagToken) normalized(raw string) string {
	if len(t.missingSpaces) == 0 {
		return raw
	}
	var b strings.Builder
	b.Grow(len(raw) + len(t.missingSpaces))
	prev := 0
	for _, off := range t.missingSpaces {
		b.WriteString(raw[prev:off])
		b.WriteByte(' ')
		prev = off
	}
	b.WriteString(raw[prev:])
	return b.String()
}

func isNameByte(c byte) bool {
	return c == '_' || c == '-' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
