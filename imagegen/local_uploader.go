package imagegen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"batchgen/reference"
)

// LocalUploader is the reference.UploadCapability for backends that take
// no remote media. The "asset id" is the absolute local path and the caption
// is left to the catalog, so references still pass through the pipeline and
// their captions reach ConditionedPrompt.
type LocalUploader struct{}

// Upload checks the file exists and returns its absolute path.
func (LocalUploader) Upload(ctx context.Context, localPath string, category reference.Category) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	if localPath == "" {
		return "", "", reference.ErrNoLocalImage
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", "", fmt.Errorf("imagegen: resolve %s: %w", localPath, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", "", &BackendError{Op: "upload", Reason: "File not found", Err: err}
	}
	if info.IsDir() {
		return "", "", &BackendError{Op: "upload", Reason: "Not a file"}
	}
	return abs, "", nil
}

var _ reference.UploadCapability = LocalUploader{}
