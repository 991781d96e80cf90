package orchestrator

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"batchgen/reference"
)

// maxReasonRunes bounds free-form failure reasons shown per image.
const maxReasonRunes = 30

var (
	// ErrNoPrompts means the submitted list had no non-blank prompt.
	ErrNoPrompts = errors.New("no prompts")

	// ErrNotAuthenticated means the credential source has no token.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrInvalidImageCount means imagesPerPrompt was below 1.
	ErrInvalidImageCount = errors.New("images per prompt must be at least 1")

	// ErrRunInProgress is returned by Submit while a run is active.
	ErrRunInProgress = errors.New("orchestrator: run in progress")

	// ErrRunNotActive is returned by controller calls that need an active run.
	ErrRunNotActive = errors.New("orchestrator: no active run")

	// ErrUploadUnavailable is the dependency failure when references need
	// uploading but no UploadCapability was configured.
	ErrUploadUnavailable = errors.New("no upload capability configured")
)

// ValidationError rejects a Submit before the run starts.
type ValidationError struct {
	Reason error
}

func (e *ValidationError) Error() string {
	return "orchestrator: invalid submission: " + e.Reason.Error()
}

func (e *ValidationError) Unwrap() error { return e.Reason }

// DependencyError reports that reference resolution failed, so no row was
// attempted.
type DependencyError struct {
	LocalPath string
	Err       error
}

func (e *DependencyError) Error() string {
	if e.LocalPath == "" {
		return fmt.Sprintf("orchestrator: reference upload failed: %v", e.Err)
	}
	return fmt.Sprintf("orchestrator: reference upload failed for %s: %v", e.LocalPath, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// ShortReason is the row-level failure text.
func (e *DependencyError) ShortReason() string {
	var upErr *reference.UploadError
	if errors.As(e.Err, &upErr) {
		return "Upload failed: " + ReasonOf(upErr.Err)
	}
	return "Upload failed: " + ReasonOf(e.Err)
}

// TaskError is a single image failure. It never stops the run.
type TaskError struct {
	Row    int
	Image  int
	Reason string
	Err    error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("orchestrator: row %d image %d: %v", e.Row, e.Image, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// ShortReasoner is implemented by adapter errors that already carry a
// display-sized reason ("HTTP 429", "No panels").
type ShortReasoner interface {
	ShortReason() string
}

// ReasonOf returns the display reason for err: the adapter's own short
// reason when present, else the error text cut to 30 runes.
func ReasonOf(err error) string {
	if err == nil {
		return ""
	}
	var sr ShortReasoner
	if errors.As(err, &sr) {
		return sr.ShortReason()
	}
	return truncate(err.Error(), maxReasonRunes)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
