package extract

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const legacyUnsupportedMessage = "legacy document extraction unsupported, convert to a supported format"

// CommandRunner runs an external program and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, err
	}
	return exec.CommandContext(ctx, name, args...).Output()
}

var legacyConverters = [][]string{
	{"antiword"},
	{"catdoc", "-w"},
}

// extractDoc tries the converters in order. When none is installed the
// result is an instructive message instead of an error.
func (e *Extractor) extractDoc(ctx context.Context, path string) (string, error) {
	var lastErr error
	for _, conv := range legacyConverters {
		args := append(append([]string{}, conv[1:]...), path)
		out, err := e.runner.Run(ctx, conv[0], args...)
		if err != nil {
			if errors.Is(err, exec.ErrNotFound) {
				continue
			}
			lastErr = err
			continue
		}
		return strings.ToValidUTF8(string(out), "�"), nil
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w: convert legacy document: %w", ErrExtraction, lastErr)
	}
	return legacyUnsupportedMessage, nil
}
