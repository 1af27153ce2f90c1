package deps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Requirement defines an external command the converter relies on. Args,
// when set, form a query that must exit zero for the command to count as
// usable.
type Requirement struct {
	Name        string
	Command     string
	Args        []string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

func newStatus(req Requirement) Status {
	return Status{
		Name:        req.Name,
		Command:     strings.TrimSpace(req.Command),
		Description: strings.TrimSpace(req.Description),
		Optional:    req.Optional,
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
// Only PATH resolution is checked; Args are ignored.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		status := newStatus(req)
		if status.Command == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(status.Command); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", status.Command)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// RunVersionQuery runs the requirement's command with its Args and reports it
// available only when the process exits zero within timeout. Output is
// discarded except for a short excerpt kept in Detail on failure.
func RunVersionQuery(ctx context.Context, req Requirement, timeout time.Duration) Status {
	status := newStatus(req)
	if status.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	if _, err := exec.LookPath(status.Command); err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", status.Command)
		return status
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var output bytes.Buffer
	cmd := exec.CommandContext(ctx, status.Command, req.Args...) //nolint:gosec
	cmd.Stdout = &output
	cmd.Stderr = &output
	err := cmd.Run()
	if err == nil {
		status.Available = true
		return status
	}

	query := strings.TrimSpace(status.Command + " " + strings.Join(req.Args, " "))
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		status.Detail = fmt.Sprintf("%s timed out after %s", query, timeout)
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			status.Detail = fmt.Sprintf("%s exited with status %d", query, exitErr.ExitCode())
		} else {
			status.Detail = fmt.Sprintf("%s failed: %v", query, err)
		}
		if excerpt := firstLine(output.String()); excerpt != "" {
			status.Detail += ": " + excerpt
		}
	}
	return status
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
