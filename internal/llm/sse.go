package llm

import (
	"bufio"
	"io"
	"strings"
)

// sseScanner reads server-sent events, joining multi-line data fields.
type sseScanner struct {
	reader *bufio.Reader
	data   string
	err    error
}

func newSSEScanner(r io.Reader) *sseScanner {
	return &sseScanner{reader: bufio.NewReaderSize(r, 64*1024)}
}

// Next advances to the next event carrying data.
func (s *sseScanner) Next() bool {
	var lines []string
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil && line == "" {
			if err != io.EOF {
				s.err = err
				return false
			}
			if len(lines) > 0 {
				s.data = strings.Join(lines, "\n")
				return true
			}
			return false
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if len(lines) > 0 {
				s.data = strings.Join(lines, "\n")
				return true
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		if field == "data" {
			lines = append(lines, strings.TrimPrefix(value, " "))
		}
	}
}

func (s *sseScanner) Data() string { return s.data }

func (s *sseScanner) Err() error { return s.err }
