package llm

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"dealdesk/internal/domain"
)

// parseSSEStream reads SSE-formatted lines from body and converts each data
// payload into a StreamDelta using the provider-specific parseLine function.
// Lines that do not start with the data prefix are ignored; "[DONE]" is the
// end-of-stream sentinel. The returned channel is closed when the stream
// ends, the body is closed, or ctx is cancelled.
func parseSSEStream(ctx context.Context, body io.ReadCloser, parseLine func(data []byte) (*domain.StreamDelta, error)) <-chan domain.StreamDelta {
	ch := make(chan domain.StreamDelta, 16)
	go func() {
		defer close(ch)
		defer body.Close()

		scanner := bufio.NewScanner(body)
		// A single data line carrying concatenated tool-call arguments can
		// exceed the scanner's default 64KB token limit.
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}

			line := scanner.Bytes()

			// Skip empty lines and comments.
			if len(line) == 0 || line[0] == ':' {
				continue
			}

			if !bytes.HasPrefix(line, []byte("data: ")) {
				continue
			}
			data := bytes.TrimPrefix(line, []byte("data: "))

			if bytes.Equal(data, []byte("[DONE]")) {
				ch <- domain.StreamDelta{Done: true}
				return
			}

			delta, err := parseLine(data)
			if err != nil {
				// Skip unparseable lines.
				continue
			}
			if delta == nil {
				continue
			}

			select {
			case ch <- *delta:
			case <-ctx.Done():
				return
			}

			if delta.Done {
				return
			}
		}
		// An I/O error (not EOF) means whatever was accumulated so far is
		// truncated; report it instead of pretending the stream completed.
		if err := scanner.Err(); err != nil {
			select {
			case ch <- domain.StreamDelta{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return ch
}
