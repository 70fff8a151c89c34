package lnd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/comit-network/swapharness/internal/poll"
)

// LogReader waits for messages in a growing log file. Every message is only
// matched once, so waiting for the same message twice needs two occurrences.
type LogReader struct {
	path   string
	offset int
	poller *poll.Poller
}

func NewLogReader(path string, poller *poll.Poller) *LogReader {
	return &LogReader{path: path, poller: poller}
}

func (reader *LogReader) WaitForLogMessage(ctx context.Context, message string, timeout time.Duration) error {
	fetch := func(ctx context.Context) (int, error) {
		content, err := os.ReadFile(reader.path)
		if err != nil {
			return -1, err
		}
		if len(content) < reader.offset {
			// the file was truncated
			reader.offset = 0
		}
		index := bytes.Index(content[reader.offset:], []byte(message))
		if index < 0 {
			return -1, nil
		}
		return reader.offset + index + len(message), nil
	}

	end, err := poll.Until(ctx, reader.poller, fetch, func(end int) bool { return end >= 0 }, timeout)
	if err != nil {
		return fmt.Errorf("log message %q did not appear in %s: %w", message, reader.path, err)
	}
	reader.offset = end
	return nil
}
