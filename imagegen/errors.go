package imagegen

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingAPIKey is returned by NewOpenAIBackend without an API key.
	ErrMissingAPIKey = errors.New("imagegen: OpenAI API key is required")

	// ErrMissingDeployment is returned for an Azure endpoint without
	// OPENAI_AZURE_DEPLOYMENT.
	ErrMissingDeployment = errors.New("imagegen: Azure deployment name is required")

	// ErrEmptyImage is returned by DiskSink.Save for an empty payload.
	ErrEmptyImage = errors.New("imagegen: empty image payload")
)

// BackendError is a failed generation call. Reason is the short text shown
// per image.
type BackendError struct {
	Op     string
	Reason string
	Err    error
}

func (e *BackendError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("imagegen: %s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("imagegen: %s: %s", e.Op, e.Reason)
}

func (e *BackendError) Unwrap() error { return e.Err }

// ShortReason returns Reason for progress display.
func (e *BackendError) ShortReason() string { return e.Reason }
