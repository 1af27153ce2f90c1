package converter

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"guernika/internal/config"
	"guernika/internal/job"
	"guernika/internal/logging"
	"guernika/internal/services"
)

const tailLines = 20

// Converter performs one conversion. A nil error means the model was written
// to the descriptor's output folder.
type Converter interface {
	Convert(ctx context.Context, desc job.Descriptor) error
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithLineHandler receives every output line of the converter process.
func WithLineHandler(fn func(string)) Option {
	return func(c *Client) {
		c.onLine = fn
	}
}

// Client runs the torch2coreml module through the configured interpreter.
type Client struct {
	python string
	module string
	env    []string
	exec   Executor
	onLine func(string)
	logger *slog.Logger
}

// New constructs a conversion client from cfg.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("converter config required")
	}
	python := strings.TrimSpace(cfg.Converter.PythonBinary)
	if python == "" {
		return nil, errors.New("python binary required")
	}
	module := strings.TrimSpace(cfg.Converter.Module)
	if module == "" {
		return nil, errors.New("converter module required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	client := &Client{
		python: python,
		module: module,
		env:    cfg.ConverterEnv(),
		exec:   commandExecutor{},
		logger: logging.NewComponentLogger(logger, "converter"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Command returns the full argument vector for desc, interpreter first.
func (c *Client) Command(desc job.Descriptor) []string {
	return append([]string{c.python, "-m", c.module}, Args(desc)...)
}

// Convert runs the conversion and blocks until the process exits.
func (c *Client) Convert(ctx context.Context, desc job.Descriptor) error {
	argv := c.Command(desc)
	logger := logging.WithContext(ctx, c.logger)
	logger.Info("starting conversion",
		logging.String(logging.FieldEventType, "conversion_start"),
		logging.String("model", desc.Source.Name()),
		logging.String("compute_unit", string(desc.ComputeUnit)),
		logging.String("output_dir", desc.OutputDir),
		logging.Int("output_width", desc.OutputSize.Width),
		logging.Int("output_height", desc.OutputSize.Height),
	)
	logger.Debug("converter command", logging.String("command", strings.Join(argv, " ")))

	tail := newTailBuffer(tailLines)
	err := c.exec.Run(ctx, argv[0], argv[1:], c.env, func(line string) {
		tail.add(line)
		logger.Debug("converter output", logging.String("line", line))
		if c.onLine != nil {
			c.onLine(line)
		}
	})
	if err != nil {
		detail := tail.String()
		message := "conversion process failed"
		if detail != "" {
			message += "\n" + detail
		}
		return services.Wrap(services.ErrConversion, "converting", "torch2coreml", message, err)
	}
	return nil
}

type tailBuffer struct {
	limit int
	lines []string
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) add(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	t.lines = append(t.lines, line)
	if len(t.lines) > t.limit {
		t.lines = t.lines[len(t.lines)-t.limit:]
	}
}

func (t *tailBuffer) String() string {
	return strings.Join(t.lines, "\n")
}
