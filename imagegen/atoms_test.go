package imagegen

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"batchgen/reference"
)

func encoded(t *testing.T, format string) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	var err error
	switch format {
	case "png":
		err = png.Encode(&buf, img)
	case "jpeg":
		err = jpeg.Encode(&buf, img, nil)
	}
	if err != nil {
		t.Fatalf("encode %s: %v", format, err)
	}
	return buf.Bytes()
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"png", encoded(t, "png"), "png"},
		{"jpeg", encoded(t, "jpeg"), "jpg"},
		{"gif header", []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;"), "gif"},
		{"garbage", []byte("not an image"), "jpg"},
		{"empty", nil, "jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.data); got != tt.want {
				t.Errorf("DetectFormat() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSizeFor(t *testing.T) {
	tests := []struct {
		ratio string
		want  string
	}{
		{"IMAGE_ASPECT_RATIO_LANDSCAPE", "1792x1024"},
		{"IMAGE_ASPECT_RATIO_PORTRAIT", "1024x1792"},
		{"IMAGE_ASPECT_RATIO_SQUARE", "1024x1024"},
		{"", "512x512"},
		{"IMAGE_ASPECT_RATIO_WIDE", "512x512"},
	}
	for _, tt := range tests {
		if got := SizeFor(tt.ratio, "512x512"); got != tt.want {
			t.Errorf("SizeFor(%q) = %q, want %q", tt.ratio, got, tt.want)
		}
	}
}

func TestConditionedPrompt(t *testing.T) {
	refs := []reference.ResolvedReference{
		{Category: reference.CategorySubject, Caption: " a red fox "},
		{Category: reference.CategoryScene, Caption: ""},
		{Category: reference.CategoryStyle, Caption: "ink wash"},
	}
	want := "fox in snow\nsubject: a red fox\nstyle: ink wash"
	if got := ConditionedPrompt("fox in snow", refs); got != want {
		t.Errorf("ConditionedPrompt() = %q, want %q", got, want)
	}
	if got := ConditionedPrompt("plain", nil); got != "plain" {
		t.Errorf("ConditionedPrompt() without refs = %q, want plain", got)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"1_fox_20260101_000000_1", "1_fox_20260101_000000_1"},
		{"a/b\\c:d", "a_b_c_d"},
		{"", "image"},
		{strings.Repeat("x", 250), strings.Repeat("x", 200)},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
