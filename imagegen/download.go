package imagegen

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxDownloadBytes bounds an image fetched from a response URL.
const maxDownloadBytes = 64 << 20

// download fetches an image some deployments return as a short-lived URL
// instead of inline base64.
func download(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("imagegen: URL cannot be empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("imagegen: create download request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &BackendError{Op: "download", Reason: "Download failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &BackendError{Op: "download", Reason: fmt.Sprintf("HTTP %d", resp.StatusCode)}
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !isImageContentType(ct) {
		return nil, &BackendError{Op: "download", Reason: "Not an image", Err: fmt.Errorf("content type %q", ct)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, &BackendError{Op: "download", Reason: "Download failed", Err: err}
	}
	if len(data) > maxDownloadBytes {
		return nil, &BackendError{Op: "download", Reason: "Image too large"}
	}
	return data, nil
}

func isImageContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	// some CDNs serve generated images as octet-stream
	return strings.HasPrefix(ct, "image/") || ct == "application/octet-stream"
}
