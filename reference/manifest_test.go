package reference

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleManifest = `subjects:
  - name: Ahmet
    tags: man, beard
    path: refs/ahmet.jpg
  - name: Ayse
    path: /abs/ayse.png
    asset_id: remote-ayse
scenes:
  - name: harbour
    caption: fishing boats at dawn
    path: refs/harbour.png
style:
  caption: watercolor painting
  path: refs/style.webp
`

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "refs.yaml", sampleManifest)

	cat, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest() error = %v", err)
	}
	if cat.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", cat.Len())
	}

	entries := cat.Snapshot()
	if entries[0].LocalPath != filepath.Join(dir, "refs", "ahmet.jpg") {
		t.Errorf("relative path = %q, want resolved against manifest dir", entries[0].LocalPath)
	}
	if entries[1].LocalPath != "/abs/ayse.png" {
		t.Errorf("absolute path = %q, want unchanged", entries[1].LocalPath)
	}
	if entries[1].State != Uploaded("remote-ayse") {
		t.Errorf("asset_id entry state = %v, want uploaded(remote-ayse)", entries[1].State)
	}
	if entries[2].Category != CategoryScene || entries[2].Caption != "fishing boats at dawn" {
		t.Errorf("scene = %+v", entries[2])
	}
	if entries[3].Category != CategoryStyle || entries[3].Name != "" {
		t.Errorf("style = %+v, want style without name", entries[3])
	}
}

func TestLoadManifest_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadManifest(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadManifest(missing) error = nil, want error")
	}
	bad := writeFile(t, dir, "bad.yaml", "subjects: [unterminated")
	if _, err := LoadManifest(bad); err == nil {
		t.Error("LoadManifest(bad yaml) error = nil, want error")
	}
}

func TestSaveManifest_RoundTripsAssetIDs(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "refs.yaml", sampleManifest)
	cat, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest() error = %v", err)
	}

	cat.SetState(0, Uploaded("remote-ahmet"))
	cat.SetCaption(0, "a bearded man")
	if err := SaveManifest(path, cat); err != nil {
		t.Fatalf("SaveManifest() error = %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "path: refs/ahmet.jpg") {
		t.Errorf("saved manifest = %s, want relative path kept", data)
	}

	reloaded, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest() after save error = %v", err)
	}
	first, _ := reloaded.Entry(0)
	if first.State != Uploaded("remote-ahmet") || first.Caption != "a bearded man" {
		t.Errorf("reloaded entry = %+v, want asset id and caption persisted", first)
	}
	if reloaded.Len() != cat.Len() {
		t.Errorf("reloaded Len() = %d, want %d", reloaded.Len(), cat.Len())
	}
}
