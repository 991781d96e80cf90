package reference

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManifestEntry is one subject or scene in a catalog manifest.
type ManifestEntry struct {
	Name    string `yaml:"name,omitempty"`
	Tags    string `yaml:"tags,omitempty"`
	Caption string `yaml:"caption,omitempty"`
	Path    string `yaml:"path,omitempty"`
	AssetID string `yaml:"asset_id,omitempty"`
}

// ManifestStyle is the style slot of a catalog manifest.
type ManifestStyle struct {
	Caption string `yaml:"caption,omitempty"`
	Path    string `yaml:"path,omitempty"`
	AssetID string `yaml:"asset_id,omitempty"`
}

// Manifest is the on-disk description of a reference catalog:
//
//	subjects:
//	  - name: Ahmet
//	    tags: man, beard
//	    path: refs/ahmet.jpg
//	scenes:
//	  - name: harbour
//	    path: refs/harbour.png
//	style:
//	  caption: watercolor painting, soft pastel palette
//	  path: refs/style.webp
type Manifest struct {
	Subjects []ManifestEntry `yaml:"subjects,omitempty"`
	Scenes   []ManifestEntry `yaml:"scenes,omitempty"`
	Style    *ManifestStyle  `yaml:"style,omitempty"`
}

// LoadManifest reads a manifest and builds a catalog from it. Relative
// paths resolve against the manifest's directory. Entries with an asset_id
// start out Uploaded.
func LoadManifest(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reference: read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("reference: parse manifest %s: %w", path, err)
	}
	return m.Catalog(filepath.Dir(path)), nil
}

// Catalog converts the manifest to a catalog, resolving relative paths
// against baseDir.
func (m *Manifest) Catalog(baseDir string) *Catalog {
	c := NewCatalog()
	for _, s := range m.Subjects {
		c.Add(fromManifest(CategorySubject, s, baseDir))
	}
	for _, s := range m.Scenes {
		c.Add(fromManifest(CategoryScene, s, baseDir))
	}
	if m.Style != nil {
		c.Add(fromManifest(CategoryStyle, ManifestEntry{
			Caption: m.Style.Caption,
			Path:    m.Style.Path,
			AssetID: m.Style.AssetID,
		}, baseDir))
	}
	return c
}

func fromManifest(cat Category, me ManifestEntry, baseDir string) Entry {
	e := Entry{
		Category:  cat,
		Caption:   me.Caption,
		LocalPath: resolvePath(baseDir, me.Path),
	}
	if cat != CategoryStyle {
		e.Name = me.Name
		e.Tags = me.Tags
	}
	if me.AssetID != "" {
		e.State = Uploaded(me.AssetID)
	}
	return e
}

func resolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) || baseDir == "" {
		return p
	}
	return filepath.Join(baseDir, p)
}

// ManifestOf captures the catalog's current entries, including asset ids
// and captions adopted during upload. Paths under baseDir are written
// relative to it. Only the first style entry is kept.
func ManifestOf(c *Catalog, baseDir string) *Manifest {
	m := &Manifest{}
	for _, e := range c.Snapshot() {
		me := ManifestEntry{
			Name:    e.Name,
			Tags:    e.Tags,
			Caption: e.Caption,
			Path:    relativePath(baseDir, e.LocalPath),
			AssetID: e.State.AssetID(),
		}
		switch e.Category {
		case CategorySubject:
			m.Subjects = append(m.Subjects, me)
		case CategoryScene:
			m.Scenes = append(m.Scenes, me)
		case CategoryStyle:
			if m.Style == nil {
				m.Style = &ManifestStyle{Caption: me.Caption, Path: me.Path, AssetID: me.AssetID}
			}
		}
	}
	return m
}

func relativePath(baseDir, p string) string {
	if p == "" || baseDir == "" {
		return p
	}
	rel, err := filepath.Rel(baseDir, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return p
	}
	return rel
}

// SaveManifest writes the catalog back to path, so the next run can reuse
// asset ids without uploading again.
func SaveManifest(path string, c *Catalog) error {
	data, err := yaml.Marshal(ManifestOf(c, filepath.Dir(path)))
	if err != nil {
		return fmt.Errorf("reference: encode manifest: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("reference: write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("reference: replace manifest: %w", err)
	}
	return nil
}
