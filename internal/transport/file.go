package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
)

// Envelope is one line of a replay file.
type Envelope struct {
	Schema  string          `json:"schema"`
	Payload json.RawMessage `json:"payload"`
}

// FileSource replays newline delimited envelopes from r. Consume returns once
// the input is exhausted.
type FileSource struct {
	r io.Reader
}

func NewFileSource(r io.Reader) *FileSource {
	return &FileSource{r: r}
}

func (s *FileSource) Consume(ctx context.Context, h Handler) error {
	sc := bufio.NewScanner(s.r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return nil
		}
		if len(sc.Bytes()) == 0 {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(sc.Bytes(), &env); err != nil {
			log.Warn().Err(err).Int("line", line).Msg("skipping malformed replay line")
			continue
		}
		h(fileMessage{env})
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read replay input: %w", err)
	}
	return nil
}

func (s *FileSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type fileMessage struct{ env Envelope }

func (f fileMessage) Schema() string { return f.env.Schema }
func (f fileMessage) Data() []byte   { return f.env.Payload }
func (f fileMessage) Ack() error     { return nil }
