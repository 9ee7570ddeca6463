package firmware

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/tswio/panelcore/internal/boards"
)

// AvrdudeFlasher shells out to avrdude with the board's flash parameters.
type AvrdudeFlasher struct {
	// Binary is the avrdude executable, "avrdude" by default.
	Binary string
	Logger *zap.Logger
}

func NewAvrdudeFlasher(logger *zap.Logger) *AvrdudeFlasher {
	return &AvrdudeFlasher{Binary: "avrdude", Logger: logger}
}

// Upload runs avrdude against the given port. Output lines are forwarded as
// coarse progress; avrdude itself does not report percentages on its
// machine-readable stream, so progress steps are phase based.
func (f *AvrdudeFlasher) Upload(ctx context.Context, port string, board boards.Definition, imagePath string, onProgress ProgressFunc) error {
	args := []string{
		"-p", board.Flash.MCU,
		"-c", board.Flash.Programmer,
		"-P", port,
		"-b", fmt.Sprintf("%d", board.Flash.BaudRate),
		"-D",
		"-U", fmt.Sprintf("flash:w:%s:i", imagePath),
	}

	cmd := exec.CommandContext(ctx, f.Binary, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to attach to flasher output: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start flasher: %w", err)
	}

	onProgress(0, "flashing started")

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		f.Logger.Debug("Flasher output", zap.String("line", line))
		switch {
		case strings.Contains(line, "writing flash"):
			onProgress(25, "writing flash")
		case strings.Contains(line, "reading on-chip flash data"):
			onProgress(75, "verifying flash")
		case strings.Contains(line, "verified"):
			onProgress(95, "flash verified")
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("flasher exited with error: %w", err)
	}

	onProgress(100, "flashing complete")
	return nil
}
