package penguin

import (
	"bytes"
	"io"
	"os"
	"regexp"

	"golang.org/x/term"
)

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// StripANSI removes terminal colour sequences.
func StripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

// echoWriter returns the writer engine output is echoed to. Colour is kept
// only when w is a terminal. The returned flush must be called once the
// command has exited.
func echoWriter(w io.Writer) (io.Writer, func()) {
	if w == nil {
		return nil, func() {}
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return w, func() {}
	}
	sw := &stripWriter{w: w}
	return sw, sw.flush
}

// stripWriter removes colour sequences line by line, so a sequence split
// across writes is still matched.
type stripWriter struct {
	w   io.Writer
	buf []byte
}

func (s *stripWriter) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	nl := bytes.LastIndexByte(s.buf, '\n')
	if nl < 0 {
		return len(p), nil
	}
	line := s.buf[:nl+1]
	if _, err := s.w.Write(ansiEscape.ReplaceAll(line, nil)); err != nil {
		return 0, err
	}
	s.buf = append(s.buf[:0], s.buf[nl+1:]...)
	return len(p), nil
}

func (s *stripWriter) flush() {
	if len(s.buf) > 0 {
		_, _ = s.w.Write(ansiEscape.ReplaceAll(s.buf, nil))
		s.buf = s.buf[:0]
	}
}
