package tracelog

import (
	"bufio"
	"io"
)

const maxLogLineBytes = 4 * 1024 * 1024

// Scanner reads trace lines from log output, one per Scan, skipping everything else.
type Scanner struct {
	scanner   *bufio.Scanner
	line      Line
	malformed int
}

// NewScanner returns a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLineBytes)

	return &Scanner{scanner: scanner}
}

// Scan advances to the next trace line. It returns false at the end of the input or on a read error.
func (s *Scanner) Scan() bool {
	for s.scanner.Scan() {
		raw, ok := Extract(s.scanner.Text())
		if !ok {
			continue
		}

		line, err := Parse(raw)
		if err != nil {
			s.malformed++
			continue
		}

		s.line = line

		return true
	}

	return false
}

// Line returns the trace line found by the last successful Scan.
func (s *Scanner) Line() Line {
	return s.line
}

// Malformed counts lines that looked like trace lines but could not be parsed.
func (s *Scanner) Malformed() int {
	return s.malformed
}

// Err returns the first read error.
func (s *Scanner) Err() error {
	return s.scanner.Err()
}

// ReadAll collects every trace line from r.
func ReadAll(r io.Reader) ([]Line, error) {
	scanner := NewScanner(r)

	lines := make([]Line, 0)
	for scanner.Scan() {
		lines = append(lines, scanner.Line())
	}

	return lines, scanner.Err()
}
