// Package reference models the operator's reference images (subjects,
// scenes, a style), picks which of them apply to a prompt, and resolves
// them into remote asset ids before generation.
package reference

import (
	"context"
	"fmt"
	"strings"
)

// Category is the role a reference image plays in a generation call.
type Category int

const (
	CategorySubject Category = iota
	CategoryScene
	CategoryStyle
)

// String returns the lower-case category name used in logs and manifests.
func (c Category) String() string {
	switch c {
	case CategorySubject:
		return "subject"
	case CategoryScene:
		return "scene"
	case CategoryStyle:
		return "style"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// APIValue returns the remote service's media category enum.
func (c Category) APIValue() string {
	switch c {
	case CategorySubject:
		return "MEDIA_CATEGORY_SUBJECT"
	case CategoryScene:
		return "MEDIA_CATEGORY_SCENE"
	case CategoryStyle:
		return "MEDIA_CATEGORY_STYLE"
	default:
		return ""
	}
}

// ParseCategory accepts either the short name ("scene") or the API value
// ("MEDIA_CATEGORY_SCENE").
func ParseCategory(s string) (Category, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SUBJECT", "MEDIA_CATEGORY_SUBJECT":
		return CategorySubject, nil
	case "SCENE", "MEDIA_CATEGORY_SCENE":
		return CategoryScene, nil
	case "STYLE", "MEDIA_CATEGORY_STYLE":
		return CategoryStyle, nil
	}
	return 0, fmt.Errorf("reference: unknown category %q", s)
}

type uploadKind int

const (
	kindLocal uploadKind = iota
	kindUploading
	kindUploaded
	kindFailed
)

// UploadState is the closed set Local | Uploading | Uploaded(assetID) |
// Failed(reason). The zero value is Local.
type UploadState struct {
	kind    uploadKind
	assetID string
	reason  string
}

// Local is the state of an image that has not been sent anywhere yet.
func Local() UploadState { return UploadState{kind: kindLocal} }

// Uploading marks an upload in flight.
func Uploading() UploadState { return UploadState{kind: kindUploading} }

// Uploaded carries the remote asset id returned by the upload capability.
func Uploaded(assetID string) UploadState {
	return UploadState{kind: kindUploaded, assetID: assetID}
}

// Failed records why the last upload attempt did not produce an asset id.
func Failed(reason string) UploadState {
	return UploadState{kind: kindFailed, reason: reason}
}

// IsUploaded reports whether the state carries an asset id.
func (s UploadState) IsUploaded() bool { return s.kind == kindUploaded }

// IsUploading reports whether an upload is in flight.
func (s UploadState) IsUploading() bool { return s.kind == kindUploading }

// IsFailed reports whether the last upload attempt failed.
func (s UploadState) IsFailed() bool { return s.kind == kindFailed }

// AssetID returns the remote asset id, or "" unless Uploaded.
func (s UploadState) AssetID() string { return s.assetID }

// Reason returns the failure reason, or "" unless Failed.
func (s UploadState) Reason() string { return s.reason }

func (s UploadState) String() string {
	switch s.kind {
	case kindUploading:
		return "uploading"
	case kindUploaded:
		return "uploaded(" + s.assetID + ")"
	case kindFailed:
		return "failed(" + s.reason + ")"
	default:
		return "local"
	}
}

// Entry is one reference image slot. Name and Tags are only meaningful for
// subjects and scenes; the matcher ignores them on styles.
type Entry struct {
	Category  Category
	Name      string
	Tags      string // comma separated
	Caption   string
	LocalPath string
	State     UploadState
}

// NewSubject returns a Local subject entry.
func NewSubject(name, tags, caption, localPath string) Entry {
	return Entry{Category: CategorySubject, Name: name, Tags: tags, Caption: caption, LocalPath: localPath}
}

// NewScene returns a Local scene entry.
func NewScene(name, tags, caption, localPath string) Entry {
	return Entry{Category: CategoryScene, Name: name, Tags: tags, Caption: caption, LocalPath: localPath}
}

// NewStyle returns a Local style entry. Styles carry no name or tags.
func NewStyle(caption, localPath string) Entry {
	return Entry{Category: CategoryStyle, Caption: caption, LocalPath: localPath}
}

// HasImage reports whether an image is attached, either locally or as an
// already-uploaded asset.
func (e Entry) HasImage() bool {
	return e.LocalPath != "" || e.State.IsUploaded()
}

// Label is a short human-readable identifier for logs and previews.
func (e Entry) Label() string {
	if e.Category != CategoryStyle && strings.TrimSpace(e.Name) != "" {
		return e.Category.String() + ":" + strings.TrimSpace(e.Name)
	}
	return e.Category.String() + ":" + e.LocalPath
}

// ResolvedReference is an entry that owns a remote asset id and can be
// attached to a generation call.
type ResolvedReference struct {
	Category Category
	AssetID  string
	Caption  string
}

// ResolvedOf converts the Uploaded entries among entries into their resolved
// form, preserving order. Entries without an asset id are skipped.
func ResolvedOf(entries []Entry) []ResolvedReference {
	out := make([]ResolvedReference, 0, len(entries))
	for _, e := range entries {
		if !e.State.IsUploaded() {
			continue
		}
		out = append(out, ResolvedReference{
			Category: e.Category,
			AssetID:  e.State.AssetID(),
			Caption:  e.Caption,
		})
	}
	return out
}

// UploadCapability turns a local image into a remote asset id. caption is
// best-effort and may be empty; a non-nil error means no asset id.
type UploadCapability interface {
	Upload(ctx context.Context, localPath string, category Category) (assetID, caption string, err error)
}
