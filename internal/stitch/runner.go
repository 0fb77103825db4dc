package stitch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"
)

// runner abstracts external tool execution so the strategy ladder can be
// exercised in tests without the binaries installed.
type runner interface {
	run(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error)
}

// execRunner spawns the real tool process.
type execRunner struct {
	// stdoutMax caps the bytes collected from the tool's stdout.
	stdoutMax int64
}

var _ runner = (*execRunner)(nil)

func (r *execRunner) run(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stitch: stdout pipe: %w", err)
	}

	var stdinPipe io.WriteCloser
	if stdin != nil {
		stdinPipe, err = cmd.StdinPipe()
		if err != nil {
			return nil, fmt.Errorf("stitch: stdin pipe: %w", err)
		}
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("stitch: start %s: %w", name, err)
	}

	if stdinPipe != nil {
		go func() {
			// The tool may stop reading once it has decoded what it needs;
			// a broken pipe here is expected, not an error.
			_, copyErr := io.Copy(stdinPipe, stdin)
			if copyErr != nil && !errors.Is(copyErr, syscall.EPIPE) {
				_ = copyErr
			}
			stdinPipe.Close()
		}()
	}

	out, readErr := io.ReadAll(io.LimitReader(stdout, r.stdoutMax))
	waitErr := cmd.Wait()

	if readErr != nil {
		return nil, fmt.Errorf("stitch: read %s output: %w", name, readErr)
	}
	if waitErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("stitch: %s: %w", name, ctx.Err())
		}
		return nil, fmt.Errorf("stitch: %s: %w: %s", name, waitErr, tail(stderr.String(), 512))
	}
	return out, nil
}

// tail returns the last n bytes of s, trimmed. Tool stderr can be long;
// only the end carries the actual failure.
func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		s = "..." + s[len(s)-n:]
	}
	return s
}

// newByteReader wraps b for use as tool stdin.
func newByteReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}
