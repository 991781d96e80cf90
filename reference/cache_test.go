package reference

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", p, err)
	}
	return p
}

func TestAssetCache_SameContentUploadsOnce(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "first.jpg", "same-bytes")
	second := writeFile(t, dir, "second.jpg", "same-bytes")
	up := &fakeUploader{captions: map[string]string{first: "a lighthouse"}}
	c := NewAssetCache(up, 0, nil)

	id1, caption1, err := c.Upload(context.Background(), first, CategoryScene)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	id2, caption2, err := c.Upload(context.Background(), second, CategoryScene)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if id1 != id2 || caption1 != caption2 {
		t.Errorf("second Upload() = %q/%q, want cached %q/%q", id2, caption2, id1, caption1)
	}
	if got := len(up.Calls()); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
}

func TestAssetCache_CategoryIsPartOfKey(t *testing.T) {
	p := writeFile(t, t.TempDir(), "ref.png", "pixels")
	up := &fakeUploader{}
	c := NewAssetCache(up, 0, nil)

	if _, _, err := c.Upload(context.Background(), p, CategorySubject); err != nil {
		t.Fatalf("Upload(subject) error = %v", err)
	}
	if _, _, err := c.Upload(context.Background(), p, CategoryStyle); err != nil {
		t.Fatalf("Upload(style) error = %v", err)
	}
	if got := len(up.Calls()); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}
}

func TestAssetCache_ErrorsNotCached(t *testing.T) {
	p := writeFile(t, t.TempDir(), "ref.png", "pixels")
	up := &fakeUploader{fail: map[string]error{p: errors.New("No Media ID returned")}}
	c := NewAssetCache(up, 0, nil)

	for i := 0; i < 2; i++ {
		if _, _, err := c.Upload(context.Background(), p, CategorySubject); err == nil {
			t.Fatalf("Upload() attempt %d error = nil, want error", i)
		}
	}
	if got := len(up.Calls()); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}
}

func TestAssetCache_ConcurrentCallers(t *testing.T) {
	p := writeFile(t, t.TempDir(), "ref.png", "pixels")
	up := &fakeUploader{}
	c := NewAssetCache(up, 0, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if id, _, err := c.Upload(context.Background(), p, CategorySubject); err != nil || id != "asset-ref.png" {
				t.Errorf("Upload() = %q, %v, want asset-ref.png", id, err)
			}
		}()
	}
	wg.Wait()

	// calls that overlap share one upload; later ones hit the cache
	if got := len(up.Calls()); got < 1 || got > 10 {
		t.Errorf("upstream calls = %d, want between 1 and 10", got)
	}
}

func TestAssetCache_MissingFile(t *testing.T) {
	c := NewAssetCache(&fakeUploader{}, 0, nil)

	if _, _, err := c.Upload(context.Background(), filepath.Join(t.TempDir(), "gone.jpg"), CategoryScene); err == nil {
		t.Error("Upload() error = nil, want error for missing file")
	}
	if _, _, err := c.Upload(context.Background(), "", CategoryScene); !errors.Is(err, ErrNoLocalImage) {
		t.Errorf("Upload(\"\") error = %v, want ErrNoLocalImage", err)
	}
}
