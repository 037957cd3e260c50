package consult

import (
	"errors"
	"fmt"
)

// Setup-time failures surface as hard errors; per-tool runtime failures
// travel as ToolResponse statuses instead.
var (
	// ErrNoToolsAvailable means no usable tool was enabled and on PATH.
	ErrNoToolsAvailable = errors.New("no tools available")

	// ErrConsultationTimeout means a tool exceeded its wall-clock timeout.
	ErrConsultationTimeout = errors.New("consultation timed out")

	// ErrConsultation wraps any other unexpected orchestration failure.
	ErrConsultation = errors.New("consultation failed")
)

func noTools(detail string) error {
	return fmt.Errorf("%w: %s", ErrNoToolsAvailable, detail)
}

func timedOut(tool string) error {
	return fmt.Errorf("%w: %s", ErrConsultationTimeout, tool)
}

func wrapConsultation(err error) error {
	return fmt.Errorf("%w: %v", ErrConsultation, err)
}
