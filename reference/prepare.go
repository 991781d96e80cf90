package reference

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // register WebP decoder
)

// Prepared is a reference image ready to be sent to the remote service.
type Prepared struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
	Resized  bool
}

// MimeTypeFor picks the upload mime type from a file extension. Anything
// that is not PNG or WebP is sent as JPEG.
func MimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// PrepareImage reads a reference image and, when either side exceeds
// maxDim, downscales it to fit within maxDim x maxDim (Lanczos) and
// re-encodes it as JPEG. Images already within bounds, or any image when
// maxDim is 0, are returned byte-for-byte.
func PrepareImage(path string, maxDim int) (*Prepared, error) {
	if path == "" {
		return nil, ErrNoLocalImage
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reference: read %s: %w", path, err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		// unknown formats go through untouched; the service decides
		return &Prepared{Data: data, MimeType: MimeTypeFor(path)}, nil
	}

	if maxDim <= 0 || (cfg.Width <= maxDim && cfg.Height <= maxDim) {
		return &Prepared{Data: data, MimeType: MimeTypeFor(path), Width: cfg.Width, Height: cfg.Height}, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("reference: decode %s: %w", path, err)
	}
	fitted := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, fitted, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("reference: encode %s: %w", path, err)
	}

	b := fitted.Bounds()
	return &Prepared{
		Data:     buf.Bytes(),
		MimeType: "image/jpeg",
		Width:    b.Dx(),
		Height:   b.Dy(),
		Resized:  true,
	}, nil
}
