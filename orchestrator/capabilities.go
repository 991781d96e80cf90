package orchestrator

import (
	"context"

	"batchgen/reference"
)

// Settings are the per-run generation parameters passed through to the
// GenerationCapability.
type Settings struct {
	AspectRatio    string
	Model          string // unconditioned generation
	SingleRefModel string // conditioned on exactly one reference
	MultiRefModel  string // conditioned on several references
}

// ModelFor picks the model for a call carrying refs references.
func (s Settings) ModelFor(refs int) string {
	switch {
	case refs <= 0:
		return s.Model
	case refs == 1:
		return s.SingleRefModel
	default:
		return s.MultiRefModel
	}
}

// GenerationCapability produces exactly one image per call.
type GenerationCapability interface {
	Generate(ctx context.Context, prompt string, s Settings) ([]byte, error)
	GenerateConditioned(ctx context.Context, prompt string, refs []reference.ResolvedReference, s Settings) ([]byte, error)
}

// FileSink persists an image. suggestedName carries no extension; the sink
// picks one and returns where the file ended up.
type FileSink interface {
	Save(data []byte, suggestedName string) (string, error)
}

// ProgressSink receives run events. Calls come from a single goroutine at a
// time and must not block for long.
type ProgressSink interface {
	TaskStarted(row int, label string)
	TaskSucceeded(row, image int, location string)
	TaskFailed(row, image int, reason string)
	RunCompleted()
}

// CredentialSource supplies the current access token. An empty token
// means not authenticated.
type CredentialSource interface {
	AccessToken() string
}

// StaticToken is a CredentialSource with a fixed token.
type StaticToken string

// AccessToken returns the token.
func (t StaticToken) AccessToken() string { return string(t) }

// NopSink discards every event.
type NopSink struct{}

func (NopSink) TaskStarted(int, string) {}
func (NopSink) TaskSucceeded(int, int, string) {}
func (NopSink) TaskFailed(int, int, string) {}
func (NopSink) RunCompleted() {}

var _ ProgressSink = NopSink{}
