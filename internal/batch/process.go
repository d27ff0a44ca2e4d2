package batch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

var statusLinePattern = regexp.MustCompile(`Scraping page (\d+)\.`)

// ParseLastPage returns the page number of the last status line in output,
// or 0 when there is none.
func ParseLastPage(output string) int {
	matches := statusLinePattern.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return 0
	}
	n, err := strconv.Atoi(matches[len(matches)-1][1])
	if err != nil {
		return 0
	}
	return n
}

// ProcessConfig configures ProcessRunner.
type ProcessConfig struct {
	// Executable is the binary to run; empty means the running binary.
	Executable string
	// OutputDir is passed to the child's crawl command.
	OutputDir string
	// ExtraArgs are appended after the positional arguments, e.g. --config.
	ExtraArgs []string
	// Stderr receives the child's logs. Nil discards them.
	Stderr io.Writer
	// Echo receives a copy of the child's stdout as it is produced.
	Echo io.Writer
	// GracePeriod is how long a canceled child may take to export before it
	// is killed.
	GracePeriod time.Duration
}

// ProcessRunner runs every attempt as a child `crawl` process so a crash in
// the browser or the crawl cannot take down the orchestrator.
type ProcessRunner struct {
	cfg     ProcessConfig
	logger  *zap.Logger
	command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewProcessRunner resolves the executable and returns a runner.
func NewProcessRunner(cfg ProcessConfig, logger *zap.Logger) (*ProcessRunner, error) {
	if cfg.OutputDir == "" {
		return nil, errors.New("output dir is required")
	}
	if cfg.Executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		cfg.Executable = exe
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessRunner{cfg: cfg, logger: logger, command: exec.CommandContext}, nil
}

// Run implements AttemptRunner.
func (r *ProcessRunner) Run(ctx context.Context, attempt Attempt) Outcome {
	started := time.Now()
	pageURL, err := crawler.PageURL(attempt.URL, attempt.StartPage)
	if err != nil {
		return Outcome{Err: err}
	}

	args := append([]string{"crawl", pageURL, r.cfg.OutputDir}, r.cfg.ExtraArgs...)
	cmd := r.command(ctx, r.cfg.Executable, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if r.cfg.Echo != nil {
		cmd.Stdout = io.MultiWriter(&stdout, r.cfg.Echo)
	}
	cmd.Stderr = r.cfg.Stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = r.cfg.GracePeriod

	r.logger.Info("Starting crawl process",
		zap.String("url", attempt.URL),
		zap.Int("start_page", attempt.StartPage),
		zap.Int("attempt", attempt.Number),
	)
	runErr := cmd.Run()
	out := Outcome{
		Succeeded: runErr == nil,
		LastPage:  ParseLastPage(stdout.String()),
		Output:    stdout.String(),
		Duration:  time.Since(started),
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			out.Err = fmt.Errorf("crawl process exited with code %d: %w", exitErr.ExitCode(), runErr)
		} else {
			out.Err = fmt.Errorf("crawl process: %w", runErr)
		}
	}
	return out
}
