package daemon

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	tail "github.com/hpcloud/tail"
)

// DefaultTailLines is how many log lines 'status' and 'logs' show.
const DefaultTailLines = 20

const tailChunk = 4096

// ReadTail returns the last n non-empty lines of the log file. A missing file
// yields no lines and no error.
func ReadTail(logFile string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	//nolint:gosec // G304: log path comes from the settings file
	f, err := os.Open(logFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	// Read backwards until the buffer holds n full lines or the file start.
	var buf []byte
	offset := info.Size()
	for offset > 0 && bytes.Count(buf, []byte{'\n'}) <= n {
		size := int64(tailChunk)
		if offset < size {
			size = offset
		}
		offset -= size
		chunk := make([]byte, size)
		if _, err := f.ReadAt(chunk, offset); err != nil && err != io.EOF {
			return nil, err
		}
		buf = append(chunk, buf...)
	}

	var lines []string
	for _, line := range strings.Split(string(buf), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, strings.TrimRight(line, "\r"))
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// ShowRecentLogs writes the last n lines of the log file to w.
func ShowRecentLogs(w io.Writer, logFile string, n int) error {
	lines, err := ReadTail(logFile, n)
	if err != nil {
		return fmt.Errorf("failed to read log file: %w", err)
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// FollowLogs prints the last n lines and then streams new lines to w until
// ctx is done.
func FollowLogs(ctx context.Context, w io.Writer, logFile string, n int) error {
	// Tail the log file with re-open and follow options to handle rotations
	t, err := tail.TailFile(logFile, tail.Config{
		ReOpen:    true,
		Follow:    true,
		MustExist: false,
		Poll:      true,
		Logger:    tail.DiscardingLogger,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
	})
	if err != nil {
		return fmt.Errorf("failed to tail log file: %w", err)
	}
	defer t.Cleanup()
	defer func() { _ = t.Stop() }()

	if err := ShowRecentLogs(w, logFile, n); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return fmt.Errorf("log tail channel closed")
			}
			if line == nil {
				continue
			}
			if line.Err != nil {
				return fmt.Errorf("failed to follow log file: %w", line.Err)
			}
			if strings.TrimSpace(line.Text) == "" {
				continue
			}
			if _, err := fmt.Fprintln(w, line.Text); err != nil {
				return err
			}
		}
	}
}
