package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"batchgen/logging"
	"batchgen/reference"
)

// recorder is a ProgressSink that keeps events as compact strings.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) TaskStarted(row int, label string) { r.add(fmt.Sprintf("start %d %s", row, label)) }
func (r *recorder) TaskSucceeded(row, image int, _ string) {
	r.add(fmt.Sprintf("ok %d %d", row, image))
}
func (r *recorder) TaskFailed(row, image int, reason string) {
	r.add(fmt.Sprintf("fail %d %d %s", row, image, reason))
}
func (r *recorder) RunCompleted() { r.add("done") }

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) has(e string) bool {
	for _, got := range r.Events() {
		if got == e {
			return true
		}
	}
	return false
}

func (r *recorder) waitFor(t *testing.T, e string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if r.has(e) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %q; events = %v", e, r.Events())
}

type genCall struct {
	prompt string
	refs   int
	model  string
}

// fakeGen returns a tiny payload. hook runs before each call returns and
// may block or fail it.
type fakeGen struct {
	mu    sync.Mutex
	calls []genCall
	hook  func(n int, prompt string) error
}

func (g *fakeGen) record(prompt string, refs int, s Settings) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, genCall{prompt: prompt, refs: refs, model: s.ModelFor(refs)})
	return len(g.calls)
}

func (g *fakeGen) run(n int, prompt string) ([]byte, error) {
	if g.hook != nil {
		if err := g.hook(n, prompt); err != nil {
			return nil, err
		}
	}
	return []byte("jpeg"), nil
}

func (g *fakeGen) Generate(_ context.Context, prompt string, s Settings) ([]byte, error) {
	return g.run(g.record(prompt, 0, s), prompt)
}

func (g *fakeGen) GenerateConditioned(_ context.Context, prompt string, refs []reference.ResolvedReference, s Settings) ([]byte, error) {
	return g.run(g.record(prompt, len(refs), s), prompt)
}

func (g *fakeGen) Calls() []genCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]genCall(nil), g.calls...)
}

type memFiles struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (m *memFiles) Save(_ []byte, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.names = append(m.names, name)
	return "/out/" + name + ".jpg", nil
}

type failingUploader struct{ err error }

func (f failingUploader) Upload(context.Context, string, reference.Category) (string, string, error) {
	return "", "", f.err
}

func newTestOrchestrator(t *testing.T, gen *fakeGen, files FileSink, sink ProgressSink, upload reference.UploadCapability, opts ...Option) *Orchestrator {
	t.Helper()
	base := []Option{WithImageDelay(0), WithRowDelay(0)}
	return New(gen, upload, files, sink, StaticToken("token"),
		logging.NewFromZap(zaptest.NewLogger(t)), append(base, opts...)...)
}

func waitRun(t *testing.T, o *Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

func TestSubmit_EventOrder(t *testing.T) {
	rec := &recorder{}
	o := newTestOrchestrator(t, &fakeGen{}, &memFiles{}, rec, nil, WithExitWhenIdle())

	runID, err := o.Submit(context.Background(), SubmitRequest{
		Prompts:         []string{"p1", "  ", "p2"},
		ImagesPerPrompt: 2,
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if runID == "" {
		t.Error("Submit() returned empty run id")
	}
	waitRun(t, o)

	want := []string{
		"start 0 1/2", "ok 0 0", "start 0 2/2", "ok 0 1",
		"start 1 1/2", "ok 1 0", "start 1 2/2", "ok 1 1",
		"done",
	}
	if got := rec.Events(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if o.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", o.State())
	}
	for _, rp := range o.Rows() {
		if rp.Status() != RowDone || len(rp.Locations) != 2 {
			t.Errorf("row %d status = %v locations = %v, want done with 2 files", rp.Row, rp.Status(), rp.Locations)
		}
	}
}

func TestSubmit_Validation(t *testing.T) {
	tests := []struct {
		name  string
		creds CredentialSource
		req   SubmitRequest
		want  error
	}{
		{"no prompts", StaticToken("t"), SubmitRequest{Prompts: []string{" ", ""}, ImagesPerPrompt: 1}, ErrNoPrompts},
		{"nil prompts", StaticToken("t"), SubmitRequest{ImagesPerPrompt: 1}, ErrNoPrompts},
		{"no token", StaticToken(""), SubmitRequest{Prompts: []string{"p"}, ImagesPerPrompt: 1}, ErrNotAuthenticated},
		{"nil credentials", nil, SubmitRequest{Prompts: []string{"p"}, ImagesPerPrompt: 1}, ErrNotAuthenticated},
		{"zero images", StaticToken("t"), SubmitRequest{Prompts: []string{"p"}}, ErrInvalidImageCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGen{}
			o := New(gen, nil, &memFiles{}, nil, tt.creds, nil)

			_, err := o.Submit(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Submit() error = %v, want %v", err, tt.want)
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Errorf("Submit() error type = %T, want *ValidationError", err)
			}
			if o.State() != StateIdle {
				t.Errorf("State() = %v, want idle", o.State())
			}
			if len(gen.Calls()) != 0 {
				t.Errorf("generation calls = %d, want 0", len(gen.Calls()))
			}
		})
	}
}

func TestSubmit_TaskFailureDoesNotStopRun(t *testing.T) {
	rec := &recorder{}
	gen := &fakeGen{hook: func(_ int, prompt string) error {
		if prompt == "bad" {
			return errors.New("Post \"https://aisandbox-pa.googleapis.com/v1/whisk:generateImage\": dial tcp: timeout")
		}
		return nil
	}}
	o := newTestOrchestrator(t, gen, &memFiles{}, rec, nil, WithExitWhenIdle())

	if _, err := o.Submit(context.Background(), SubmitRequest{Prompts: []string{"bad", "good"}, ImagesPerPrompt: 1}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitRun(t, o)

	want := []string{
		"start 0 1/1", `fail 0 0 Post "https://aisandbox-pa.goo`,
		"start 1 1/1", "ok 1 0",
		"done",
	}
	if got := rec.Events(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if got := o.FailedRows(); !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("FailedRows() = %v, want [0]", got)
	}
}

func TestSubmit_SaveFailureIsTaskFailure(t *testing.T) {
	rec := &recorder{}
	o := newTestOrchestrator(t, &fakeGen{}, &memFiles{err: errors.New("undecodable image payload")}, rec, nil, WithExitWhenIdle())

	if _, err := o.Submit(context.Background(), SubmitRequest{Prompts: []string{"p"}, ImagesPerPrompt: 1}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitRun(t, o)

	if !rec.has("fail 0 0 undecodable image payload") {
		t.Errorf("events = %v, want save failure reported", rec.Events())
	}
}

func TestPause_HoldsNextRow(t *testing.T) {
	rec := &recorder{}
	entered := make(chan struct{})
	release := make(chan struct{})
	gen := &fakeGen{hook: func(n int, _ string) error {
		if n == 1 {
			close(entered)
			<-release
		}
		return nil
	}}
	o := newTestOrchestrator(t, gen, &memFiles{}, rec, nil, WithExitWhenIdle())

	if _, err := o.Submit(context.Background(), SubmitRequest{Prompts: []string{"p1", "p2"}, ImagesPerPrompt: 1}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	<-entered
	if err := o.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	close(release)

	// the in-flight call still completes
	rec.waitFor(t, "ok 0 0")
	time.Sleep(50 * time.Millisecond)
	for _, e := range rec.Events() {
		if strings.HasPrefix(e, "start 1") {
			t.Fatalf("row 1 started while paused: %v", rec.Events())
		}
	}
	if o.State() != StatePaused {
		t.Errorf("State() = %v, want paused", o.State())
	}

	if err := o.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	waitRun(t, o)
	if !rec.has("ok 1 0") {
		t.Errorf("events = %v, want row 1 after resume", rec.Events())
	}
}

func TestStop_DuringSecondImage(t *testing.T) {
	rec := &recorder{}
	entered := make(chan struct{})
	release := make(chan struct{})
	gen := &fakeGen{hook: func(n int, _ string) error {
		if n == 2 {
			close(entered)
			<-release
		}
		return nil
	}}
	files := &memFiles{}
	o := newTestOrchestrator(t, gen, files, rec, nil)

	if _, err := o.Submit(context.Background(), SubmitRequest{Prompts: []string{"p1", "p2"}, ImagesPerPrompt: 2}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	<-entered
	if err := o.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if o.State() != StateStopping {
		t.Errorf("State() = %v, want stopping", o.State())
	}
	close(release)
	waitRun(t, o)

	want := []string{"start 0 1/2", "ok 0 0", "start 0 2/2", "done"}
	if got := rec.Events(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if len(files.names) != 1 {
		t.Errorf("saved files = %v, want only the first image", files.names)
	}
	if o.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", o.State())
	}
}

func TestStop_WhilePausedAndIdle(t *testing.T) {
	rec := &recorder{}
	o := newTestOrchestrator(t, &fakeGen{}, &memFiles{}, rec, nil)

	if _, err := o.Submit(context.Background(), SubmitRequest{Prompts: []string{"p1"}, ImagesPerPrompt: 1}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	// without ExitWhenIdle the worker waits for more work
	rec.waitFor(t, "ok 0 0")
	if err := o.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if err := o.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	waitRun(t, o)
	if !rec.has("done") {
		t.Errorf("events = %v, want done", rec.Events())
	}
}

func TestRetry_AppendsAfterQueuedRows(t *testing.T) {
	rec := &recorder{}
	entered := make(chan struct{})
	release := make(chan struct{})
	var failedOnce sync.Once
	gen := &fakeGen{hook: func(n int, prompt string) error {
		var err error
		if prompt == "p1" {
			failedOnce.Do(func() { err = errors.New("HTTP 500") })
		}
		if prompt == "p2" {
			close(entered)
			<-release
		}
		return err
	}}
	o := newTestOrchestrator(t, gen, &memFiles{}, rec, nil, WithExitWhenIdle())

	if _, err := o.Submit(context.Background(), SubmitRequest{Prompts: []string{"p1", "p2", "p3"}, ImagesPerPrompt: 1}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	<-entered
	if got := o.FailedRows(); !reflect.DeepEqual(got, []int{0}) {
		t.Fatalf("FailedRows() = %v, want [0]", got)
	}
	rows, err := o.RetryFailed()
	if err != nil || !reflect.DeepEqual(rows, []int{0}) {
		t.Fatalf("RetryFailed() = %v, %v, want [0], nil", rows, err)
	}
	close(release)
	waitRun(t, o)

	want := []string{
		"start 0 1/1", "fail 0 0 HTTP 500",
		"start 1 1/1", "ok 1 0",
		"start 2 1/1", "ok 2 0",
		"start 0 1/1", "ok 0 0",
		"done",
	}
	if got := rec.Events(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if got := o.FailedRows(); len(got) != 0 {
		t.Errorf("FailedRows() after retry = %v, want none", got)
	}
	for _, rp := range o.Rows() {
		if rp.Row == 0 && rp.Attempts != 2 {
			t.Errorf("row 0 Attempts = %d, want 2", rp.Attempts)
		}
	}
}

func TestAutoRetry_RequeuesFailedRowsWhenIdle(t *testing.T) {
	tests := []struct {
		name       string
		passes     int
		failures   int
		want       []string
		wantFailed []int
	}{
		{
			name:     "succeeds on second retry",
			passes:   3,
			failures: 2,
			want: []string{
				"start 0 1/1", "fail 0 0 boom", "start 1 1/1", "ok 1 0",
				"start 0 1/1", "fail 0 0 boom",
				"start 0 1/1", "ok 0 0",
				"done",
			},
		},
		{
			name:     "passes exhausted",
			passes:   1,
			failures: 5,
			want: []string{
				"start 0 1/1", "fail 0 0 boom", "start 1 1/1", "ok 1 0",
				"start 0 1/1", "fail 0 0 boom",
				"done",
			},
			wantFailed: []int{0},
		},
		{
			name:     "disabled",
			passes:   0,
			failures: 5,
			want: []string{
				"start 0 1/1", "fail 0 0 boom", "start 1 1/1", "ok 1 0",
				"done",
			},
			wantFailed: []int{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			bad := 0
			gen := &fakeGen{hook: func(_ int, prompt string) error {
				if prompt == "bad" && bad < tt.failures {
					bad++
					return errors.New("boom")
				}
				return nil
			}}
			o := newTestOrchestrator(t, gen, &memFiles{}, rec, nil, WithExitWhenIdle(), WithAutoRetry(tt.passes))

			if _, err := o.Submit(context.Background(), SubmitRequest{Prompts: []string{"bad", "good"}, ImagesPerPrompt: 1}); err != nil {
				t.Fatalf("Submit() error = %v", err)
			}
			waitRun(t, o)

			if got := rec.Events(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("events = %v, want %v", got, tt.want)
			}
			if got := o.FailedRows(); !reflect.DeepEqual(got, tt.wantFailed) {
				t.Errorf("FailedRows() = %v, want %v", got, tt.wantFailed)
			}
		})
	}
}

func TestRetry_Errors(t *testing.T) {
	o := newTestOrchestrator(t, &fakeGen{}, &memFiles{}, nil, nil)

	if err := o.Retry(0); !errors.Is(err, ErrRunNotActive) {
		t.Errorf("Retry() before submit error = %v, want ErrRunNotActive", err)
	}
	if _, err := o.Submit(context.Background(), SubmitRequest{Prompts: []string{"p"}, ImagesPerPrompt: 1}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if err := o.Retry(7); err == nil {
		t.Error("Retry(unknown row) error = nil, want error")
	}
	if err := o.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	waitRun(t, o)
}

func TestDependencyFailure_FailsFirstRowOnly(t *testing.T) {
	rec := &recorder{}
	gen := &fakeGen{}
	cat := reference.NewCatalog(reference.NewSubject("Ahmet", "", "", "ahmet.jpg"))
	up := failingUploader{err: errors.New("Upload HTTP 403")}
	o := newTestOrchestrator(t, gen, &memFiles{}, rec, up, WithExitWhenIdle())

	_, err := o.Submit(context.Background(), SubmitRequest{
		Prompts:         []string{"Ahmet sails", "Ahmet fishes"},
		ImagesPerPrompt: 2,
		Catalog:         cat,
	})
	var depErr *DependencyError
	if !errors.As(err, &depErr) {
		t.Fatalf("Submit() error = %v, want *DependencyError", err)
	}
	if depErr.LocalPath != "ahmet.jpg" {
		t.Errorf("DependencyError.LocalPath = %q, want ahmet.jpg", depErr.LocalPath)
	}
	waitRun(t, o)

	want := []string{"fail 0 0 Upload failed: Upload HTTP 403", "done"}
	if got := rec.Events(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
	if len(gen.Calls()) != 0 {
		t.Errorf("generation calls = %d, want 0", len(gen.Calls()))
	}
	if o.State() != StateStopped {
		t.Errorf("State() = %v, want stopped", o.State())
	}
	if got := o.FailedRows(); !reflect.DeepEqual(got, []int{0}) {
		t.Errorf("FailedRows() = %v, want [0]", got)
	}
}

func TestDependencyFailure_FailAll(t *testing.T) {
	rec := &recorder{}
	cat := reference.NewCatalog(reference.NewScene("harbour", "", "", "harbour.jpg"))
	up := failingUploader{err: errors.New("No Media ID returned")}
	o := newTestOrchestrator(t, &fakeGen{}, &memFiles{}, rec, up, WithExitWhenIdle(), WithFailAllOnDependencyError(true))

	if _, err := o.Submit(context.Background(), SubmitRequest{
		Prompts: []string{"a", "b", "c"}, ImagesPerPrompt: 1, Catalog: cat,
	}); err == nil {
		t.Fatal("Submit() error = nil, want dependency error")
	}
	waitRun(t, o)

	want := []string{
		"fail 0 0 Upload failed: No Media ID returned",
		"fail 1 0 Upload failed: No Media ID returned",
		"fail 2 0 Upload failed: No Media ID returned",
		"done",
	}
	if got := rec.Events(); !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestSubmit_SelectsReferencesPerPrompt(t *testing.T) {
	gen := &fakeGen{}
	ahmet := reference.NewSubject("Ahmet", "", "", "ahmet.jpg")
	ahmet.State = reference.Uploaded("remote-ahmet")
	style := reference.NewStyle("watercolor painting", "style.png")
	style.State = reference.Uploaded("remote-style")
	cat := reference.NewCatalog(ahmet, style)
	settings := Settings{Model: "imagen", SingleRefModel: "single", MultiRefModel: "multi"}

	o := newTestOrchestrator(t, gen, &memFiles{}, nil, nil, WithExitWhenIdle())
	if _, err := o.Submit(context.Background(), SubmitRequest{
		Prompts:         []string{"Ahmet on a boat", "Ahmet in watercolor", "an empty sea"},
		ImagesPerPrompt: 1,
		Settings:        settings,
		Catalog:         cat,
	}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitRun(t, o)

	want := []genCall{
		{prompt: "Ahmet on a boat", refs: 1, model: "single"},
		{prompt: "Ahmet in watercolor", refs: 2, model: "multi"},
		{prompt: "an empty sea", refs: 0, model: "imagen"},
	}
	if got := gen.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %+v, want %+v", got, want)
	}
}

func TestSubmit_OnlyKeepsRowIndices(t *testing.T) {
	rec := &recorder{}
	files := &memFiles{}
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	o := newTestOrchestrator(t, &fakeGen{}, files, rec, nil, WithExitWhenIdle(), WithClock(func() time.Time { return at }))

	if _, err := o.Submit(context.Background(), SubmitRequest{
		RunID:           "run-1",
		Prompts:         []string{"first", "second", "third"},
		ImagesPerPrompt: 1,
		Only:            []int{2},
	}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitRun(t, o)

	if got := rec.Events(); !reflect.DeepEqual(got, []string{"start 2 1/1", "ok 2 0", "done"}) {
		t.Errorf("events = %v", got)
	}
	if want := []string{"3_third_20260304_050607_1"}; !reflect.DeepEqual(files.names, want) {
		t.Errorf("saved names = %v, want %v", files.names, want)
	}
	if o.RunID() != "run-1" {
		t.Errorf("RunID() = %q, want run-1", o.RunID())
	}
}

func TestSubmit_RejectsWhileActive(t *testing.T) {
	o := newTestOrchestrator(t, &fakeGen{}, &memFiles{}, nil, nil)
	req := SubmitRequest{Prompts: []string{"p"}, ImagesPerPrompt: 1}

	if _, err := o.Submit(context.Background(), req); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err := o.Submit(context.Background(), req); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("second Submit() error = %v, want ErrRunInProgress", err)
	}
	if err := o.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	waitRun(t, o)

	// a stopped run can be replaced by a fresh one
	if _, err := o.Submit(context.Background(), req); err != nil {
		t.Errorf("Submit() after stop error = %v", err)
	}
	o.Stop()
	waitRun(t, o)
}

func TestController_IdleErrors(t *testing.T) {
	o := newTestOrchestrator(t, &fakeGen{}, &memFiles{}, nil, nil)

	if err := o.Pause(); !errors.Is(err, ErrRunNotActive) {
		t.Errorf("Pause() error = %v, want ErrRunNotActive", err)
	}
	if err := o.Resume(); !errors.Is(err, ErrRunNotActive) {
		t.Errorf("Resume() error = %v, want ErrRunNotActive", err)
	}
	if err := o.Stop(); !errors.Is(err, ErrRunNotActive) {
		t.Errorf("Stop() error = %v, want ErrRunNotActive", err)
	}
	if err := o.Wait(context.Background()); err != nil {
		t.Errorf("Wait() with no run error = %v, want nil", err)
	}
}
