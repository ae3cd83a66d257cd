package stream

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/hupe1980/gigamesh/logging"
	"github.com/hupe1980/gigamesh/model"
)

// doneSentinel terminates OpenAI compatible event streams.
const doneSentinel = "[DONE]"

// Result is the outcome of reading a complete stream.
type Result struct {
	Message      model.Message
	FinishReason string
	Usage        *model.TokenUsage
	Chunks       int
}

// Reader frames a streamed response body into chunks and folds them through
// a Normalizer and an Accumulator. It accepts both "data: {...}" server-sent
// events and bare newline-delimited JSON.
type Reader struct {
	n      Normalizer
	logger logging.Logger
}

// NewReader creates a Reader for the given normalizer strategy.
func NewReader(n Normalizer, logger logging.Logger) *Reader {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Reader{n: n, logger: logger}
}

// Read consumes body until EOF or the [DONE] sentinel. onDelta (optional) is
// invoked for every normalized delta, in arrival order. Nothing is emitted
// once ctx is cancelled.
func (r *Reader) Read(ctx context.Context, body io.Reader, onDelta func(model.Delta)) (*Result, error) {
	br := bufio.NewReader(body)
	acc := NewAccumulator(r.n, r.logger)
	chunks := 0

	for {
		line, readErr := br.ReadString('\n')
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			return nil, readErr
		}

		chunk, ok := frame(line)
		if ok && chunk == doneSentinel {
			break
		}
		if ok {
			d, err := r.n.NormalizeDelta(chunk)
			if err != nil {
				return nil, err
			}
			chunks++
			acc.Add(d)
			if onDelta != nil {
				onDelta(d)
			}
		}

		if readErr != nil { // io.EOF
			break
		}
	}

	if pending := acc.Pending(); len(pending) > 0 {
		r.logger.Warn("stream ended with incomplete tool call arguments", "indexes", pending)
	}

	return &Result{
		Message:      acc.Message(),
		FinishReason: acc.FinishReason(),
		Usage:        acc.Usage(),
		Chunks:       chunks,
	}, nil
}

// frame extracts the chunk payload from one line. Blank lines, comments and
// non-data SSE fields yield ok=false.
func frame(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, ":") {
		return "", false
	}
	if data, found := strings.CutPrefix(line, "data:"); found {
		data = strings.TrimSpace(data)
		return data, data != ""
	}
	for _, field := range []string{"event:", "id:", "retry:"} {
		if strings.HasPrefix(line, field) {
			return "", false
		}
	}
	return line, true
}
