package svgpath

import (
	"fmt"
	"math"
	"strconv"
)

// scanner tokenises SVG path data.
type scanner struct {
	data string
	pos  int
}

func isSeparator(c byte) bool {
	return c == ' ' || c == ',' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func (s *scanner) skipSeparators() {
	for s.pos < len(s.data) && isSeparator(s.data[s.pos]) {
		s.pos++
	}
}

func (s *scanner) done() bool {
	s.skipSeparators()
	return s.pos >= len(s.data)
}

// command returns the next command letter if one follows.
func (s *scanner) command() (byte, bool) {
	s.skipSeparators()
	if s.pos >= len(s.data) {
		return 0, false
	}
	c := s.data[s.pos]
	if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		if c == 'e' || c == 'E' {
			return 0, false
		}
		s.pos++
		return c, true
	}
	return 0, false
}

// hasNumber reports whether a number starts at the next token.
func (s *scanner) hasNumber() bool {
	s.skipSeparators()
	if s.pos >= len(s.data) {
		return false
	}
	c := s.data[s.pos]
	return isDigit(c) || c == '.' || c == '-' || c == '+'
}

// number reads one number. A second decimal point or a sign starts the
// next number, so "1.5.5" and "1-2" are both two numbers.
func (s *scanner) number() (float64, error) {
	s.skipSeparators()
	start := s.pos
	if s.pos < len(s.data) && (s.data[s.pos] == '-' || s.data[s.pos] == '+') {
		s.pos++
	}
	digits := 0
	for s.pos < len(s.data) && isDigit(s.data[s.pos]) {
		s.pos++
		digits++
	}
	if s.pos < len(s.data) && s.data[s.pos] == '.' {
		s.pos++
		for s.pos < len(s.data) && isDigit(s.data[s.pos]) {
			s.pos++
			digits++
		}
	}
	if digits == 0 {
		return 0, fmt.Errorf("expected number at offset %d", start)
	}
	if s.pos < len(s.data) && (s.data[s.pos] == 'e' || s.data[s.pos] == 'E') {
		mark := s.pos
		s.pos++
		if s.pos < len(s.data) && (s.data[s.pos] == '-' || s.data[s.pos] == '+') {
			s.pos++
		}
		if s.pos < len(s.data) && isDigit(s.data[s.pos]) {
			for s.pos < len(s.data) && isDigit(s.data[s.pos]) {
				s.pos++
			}
		} else {
			s.pos = mark
		}
	}
	v, err := strconv.ParseFloat(s.data[start:s.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q at offset %d: %w", s.data[start:s.pos], start, err)
	}
	if math.Abs(v) > maxCoordinate {
		return 0, fmt.Errorf("number %q at offset %d is out of range", s.data[start:s.pos], start)
	}
	return v, nil
}

// flag reads an arc flag, which may be written without a separator.
func (s *scanner) flag() (bool, error) {
	s.skipSeparators()
	if s.pos >= len(s.data) {
		return false, fmt.Errorf("expected arc flag at end of data")
	}
	switch s.data[s.pos] {
	case '0':
		s.pos++
		return false, nil
	case '1':
		s.pos++
		return true, nil
	default:
		return false, fmt.Errorf("invalid arc flag %q at offset %d", s.data[s.pos], s.pos)
	}
}

// numbers reads n numbers.
func (s *scanner) numbers(n int) ([]float64, error) {
	out := make([]float64, n)
	for i := range out {
		v, err := s.number()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
