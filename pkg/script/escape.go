package script

// escapeState tracks whether relayed output is inside a terminal escape
// sequence. A sequence starts at ESC or a low control byte and ends at a
// letter or a line break.
type escapeState struct {
	inside bool
}

func (s *escapeState) observe(b byte) {
	switch {
	case b == 0x1b || b < 9:
		s.inside = true
	case (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '\r' || b == '\n':
		s.inside = false
	}
}

func (s *escapeState) observeAll(p []byte) {
	for _, b := range p {
		s.observe(b)
	}
}

func (s *escapeState) inSequence() bool {
	return s.inside
}
