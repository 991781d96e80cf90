package reference

import (
	"errors"
	"fmt"
)

var (
	// ErrNoLocalImage is returned when an upload is requested for an entry
	// without a local file.
	ErrNoLocalImage = errors.New("reference: no local image attached")

	// ErrEmptyAssetID is returned when an upload reports success but hands
	// back no asset id.
	ErrEmptyAssetID = errors.New("reference: upload returned empty asset id")
)

// UploadError reports which entry stopped a resolution.
type UploadError struct {
	LocalPath string
	Category  Category
	Err       error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("reference: upload %s %s: %v", e.Category, e.LocalPath, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}
