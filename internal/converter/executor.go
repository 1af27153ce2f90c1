package converter

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, env []string, onLine func(string)) error
}

const (
	// maxChunkBytes bounds a single token when the process writes a long
	// run without any line break.
	maxChunkBytes = 64 * 1024
	// maxForwardBytes bounds the text handed to onLine per token.
	maxForwardBytes = 512
)

type commandExecutor struct{}

// Run starts binary with env appended to the current environment and
// forwards stdout and stderr lines to onLine as they arrive.
func (commandExecutor) Run(ctx context.Context, binary string, args []string, env []string, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var scanErr error
	var once sync.Once

	forward := func(line string) {
		if onLine == nil || line == "" {
			return
		}
		if len(line) > maxForwardBytes {
			line = line[:maxForwardBytes] + "..."
		}
		mu.Lock()
		defer mu.Unlock()
		onLine(line)
	}

	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 4096), 2*maxChunkBytes)
		scanner.Split(scanOutputLines)
		for scanner.Scan() {
			forward(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
			// Keep the pipe flowing so the process can exit.
			_, _ = io.Copy(io.Discard, r)
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)

	wg.Wait()
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	if scanErr != nil {
		return fmt.Errorf("scan output: %w", scanErr)
	}
	return nil
}

// scanOutputLines splits on '\n' or '\r' so carriage-return progress bars
// yield one token per update. Runs longer than maxChunkBytes without a break
// are emitted in chunks.
func scanOutputLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if len(data) >= maxChunkBytes {
		return maxChunkBytes, data[:maxChunkBytes], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
