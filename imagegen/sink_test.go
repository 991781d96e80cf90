package imagegen

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"batchgen/reference"
)

func TestDiskSink_Save(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink, err := NewDiskSink(dir)
	if err != nil {
		t.Fatalf("NewDiskSink() error = %v", err)
	}

	data := encoded(t, "png")
	path, err := sink.Save(data, "1_fox_20260101_120000_1")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if want := filepath.Join(dir, "1_fox_20260101_120000_1.png"); path != want {
		t.Errorf("Save() path = %q, want %q", path, want)
	}
	got, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(got, data) {
		t.Errorf("saved content mismatch, err = %v", err)
	}

	// unknown payloads land as .jpg
	path, err = sink.Save([]byte("opaque"), "2_x")
	if err != nil || filepath.Ext(path) != ".jpg" {
		t.Errorf("Save() = %q, %v, want .jpg", path, err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("output dir has %d entries, want 2 (no temp files left)", len(entries))
	}
}

func TestDiskSink_Errors(t *testing.T) {
	if _, err := NewDiskSink(""); err == nil {
		t.Error("NewDiskSink(\"\") error = nil")
	}

	sink, err := NewDiskSink(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskSink() error = %v", err)
	}
	if _, err := sink.Save(nil, "x"); !errors.Is(err, ErrEmptyImage) {
		t.Errorf("Save(nil) error = %v, want ErrEmptyImage", err)
	}
}

func TestLocalUploader(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "ref.png")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	id, caption, err := LocalUploader{}.Upload(context.Background(), p, reference.CategorySubject)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if id != p || caption != "" {
		t.Errorf("Upload() = %q, %q, want %q and empty caption", id, caption, p)
	}

	_, _, err = LocalUploader{}.Upload(context.Background(), filepath.Join(dir, "gone.png"), reference.CategorySubject)
	var be *BackendError
	if !errors.As(err, &be) || be.ShortReason() != "File not found" {
		t.Errorf("Upload(missing) error = %v, want File not found", err)
	}

	if _, _, err := (LocalUploader{}).Upload(context.Background(), "", reference.CategoryScene); !errors.Is(err, reference.ErrNoLocalImage) {
		t.Errorf("Upload(\"\") error = %v, want ErrNoLocalImage", err)
	}
	if _, _, err := (LocalUploader{}).Upload(context.Background(), dir, reference.CategoryScene); err == nil {
		t.Error("Upload(dir) error = nil")
	}
}
