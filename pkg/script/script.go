// Package script runs ordered shell command scripts.
//
// A script is plain text, one entry per line:
//
//	# Section header        printed unless quiet
//	:quiet                  directive, changes options for the following lines
//	git push origin develop command, run with sh -c
//
// Lines run strictly in order. A non-zero exit stops the script; what
// happens next depends on the fail-fast option.
package script

import (
	"fmt"
	"strings"
)

// LineKind classifies a script line.
type LineKind int

const (
	LineBlank LineKind = iota
	LineComment
	LineDirective
	LineCommand
)

// String implements fmt.Stringer.
func (k LineKind) String() string {
	switch k {
	case LineBlank:
		return "blank"
	case LineComment:
		return "comment"
	case LineDirective:
		return "directive"
	case LineCommand:
		return "command"
	default:
		return fmt.Sprintf("LineKind(%d)", int(k))
	}
}

// Directive is an in-script option switch.
type Directive string

const (
	DirectiveQuiet     Directive = "quiet"
	DirectiveStream    Directive = "stream"
	DirectiveReturn    Directive = "return"
	DirectiveNoSpinner Directive = "nospinner"
	DirectiveFailQuiet Directive = "failquiet"
)

// Validate checks if the directive is known.
func (d Directive) Validate() error {
	switch d {
	case DirectiveQuiet, DirectiveStream, DirectiveReturn, DirectiveNoSpinner, DirectiveFailQuiet:
		return nil
	default:
		return fmt.Errorf("unknown directive: :%s", d)
	}
}

// Line is one parsed script line. Number is 0-based, matching the
// position in the source text.
type Line struct {
	Number    int
	Kind      LineKind
	Text      string
	Directive Directive
}

// Script is an ordered sequence of lines.
type Script struct {
	lines []Line
}

// Parse parses script text. Unknown directives are rejected so that a
// typo never silently changes failure semantics.
func Parse(text string) (Script, error) {
	raw := strings.Split(strings.TrimRight(text, "\n"), "\n")
	lines := make([]Line, 0, len(raw))

	for i, r := range raw {
		r = strings.TrimSpace(r)
		l := Line{Number: i, Text: r}
		switch {
		case r == "":
			l.Kind = LineBlank
		case strings.HasPrefix(r, "#"):
			l.Kind = LineComment
		case strings.HasPrefix(r, ":"):
			l.Kind = LineDirective
			l.Directive = Directive(strings.TrimPrefix(r, ":"))
			if err := l.Directive.Validate(); err != nil {
				return Script{}, fmt.Errorf("line %d: %w", i, err)
			}
		default:
			l.Kind = LineCommand
		}
		lines = append(lines, l)
	}

	return Script{lines: lines}, nil
}

// MustParse is Parse for scripts built from literals.
func MustParse(text string) Script {
	s, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return s
}

// Lines builds a script from individual lines.
func Lines(lines ...string) (Script, error) {
	return Parse(strings.Join(lines, "\n"))
}

// Lines returns a copy of the parsed lines.
func (s Script) Lines() []Line {
	out := make([]Line, len(s.lines))
	copy(out, s.lines)
	return out
}

// Commands returns the command lines only.
func (s Script) Commands() []Line {
	var out []Line
	for _, l := range s.lines {
		if l.Kind == LineCommand {
			out = append(out, l)
		}
	}
	return out
}

// String reassembles the script text.
func (s Script) String() string {
	parts := make([]string, len(s.lines))
	for i, l := range s.lines {
		parts[i] = l.Text
	}
	return strings.Join(parts, "\n")
}
