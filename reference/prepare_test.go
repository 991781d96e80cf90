package reference

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writePNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	p := filepath.Join(dir, "ref.png")
	if err := os.WriteFile(p, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return p
}

func TestPrepareImage_Downscales(t *testing.T) {
	p := writePNG(t, t.TempDir(), 64, 32)

	got, err := PrepareImage(p, 16)
	if err != nil {
		t.Fatalf("PrepareImage() error = %v", err)
	}
	if !got.Resized || got.MimeType != "image/jpeg" {
		t.Errorf("PrepareImage() resized=%v mime=%s, want true image/jpeg", got.Resized, got.MimeType)
	}
	if got.Width != 16 || got.Height != 8 {
		t.Errorf("PrepareImage() size = %dx%d, want 16x8", got.Width, got.Height)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(got.Data)); err != nil {
		t.Errorf("prepared data does not decode: %v", err)
	}
}

func TestPrepareImage_WithinBounds(t *testing.T) {
	p := writePNG(t, t.TempDir(), 20, 10)
	orig, _ := os.ReadFile(p)

	for _, maxDim := range []int{0, 20, 100} {
		got, err := PrepareImage(p, maxDim)
		if err != nil {
			t.Fatalf("PrepareImage(%d) error = %v", maxDim, err)
		}
		if got.Resized || !bytes.Equal(got.Data, orig) || got.MimeType != "image/png" {
			t.Errorf("PrepareImage(%d) resized=%v mime=%s, want original png bytes", maxDim, got.Resized, got.MimeType)
		}
	}
}

func TestPrepareImage_Errors(t *testing.T) {
	if _, err := PrepareImage("", 10); !errors.Is(err, ErrNoLocalImage) {
		t.Errorf("PrepareImage(\"\") error = %v, want ErrNoLocalImage", err)
	}
	if _, err := PrepareImage(filepath.Join(t.TempDir(), "gone.jpg"), 10); err == nil {
		t.Error("PrepareImage(missing) error = nil, want error")
	}
}

func TestPrepareImage_UnknownFormatPassesThrough(t *testing.T) {
	p := writeFile(t, t.TempDir(), "ref.heic", "not an image we decode")

	got, err := PrepareImage(p, 10)
	if err != nil {
		t.Fatalf("PrepareImage() error = %v", err)
	}
	if string(got.Data) != "not an image we decode" || got.MimeType != "image/jpeg" {
		t.Errorf("PrepareImage() = %q %s, want raw bytes as image/jpeg", got.Data, got.MimeType)
	}
}

func TestMimeTypeFor(t *testing.T) {
	tests := map[string]string{
		"a.png":  "image/png",
		"a.PNG":  "image/png",
		"a.webp": "image/webp",
		"a.jpg":  "image/jpeg",
		"a.jpeg": "image/jpeg",
		"a":      "image/jpeg",
	}
	for in, want := range tests {
		if got := MimeTypeFor(in); got != want {
			t.Errorf("MimeTypeFor(%q) = %q, want %q", in, got, want)
		}
	}
}
