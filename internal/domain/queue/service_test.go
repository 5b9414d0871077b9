package queue_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/edumarques81/radioqueue/internal/domain/library"
	"github.com/edumarques81/radioqueue/internal/domain/queue"
	"github.com/edumarques81/radioqueue/internal/infra/history"
	"github.com/edumarques81/radioqueue/internal/infra/resolver"
	"github.com/edumarques81/radioqueue/internal/infra/telnet"
)

type fakeBackend struct {
	mu       sync.Mutex
	enqueued []string
	skips    int
	reply    string
	metadata string
	err      error
}

func (f *fakeBackend) Enqueue(ctx context.Context, ref string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.enqueued = append(f.enqueued, ref)
	return f.reply, nil
}

func (f *fakeBackend) Skip(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.skips++
	return f.reply, nil
}

func (f *fakeBackend) NowPlaying(ctx context.Context) (string, error) {
	return f.metadata, f.err
}

func (f *fakeBackend) Ping(ctx context.Context) error {
	return f.err
}

type fakeLibrary map[string]string

func (l fakeLibrary) Lookup(name string) (string, error) {
	if p, ok := l[name]; ok {
		return p, nil
	}
	return "", library.ErrNotFound
}

type fakeResolver struct {
	calls []string
	ref   string
	err   error
}

func (r *fakeResolver) Resolve(ctx context.Context, id string) (string, error) {
	r.calls = append(r.calls, id)
	return r.ref, r.err
}

type fakeRecorder struct {
	entries []history.Entry
}

func (r *fakeRecorder) Record(ctx context.Context, e history.Entry) (history.Entry, error) {
	r.entries = append(r.entries, e)
	return e, nil
}

func TestEnqueueValidation(t *testing.T) {
	backend := &fakeBackend{}
	svc := queue.NewService(backend, fakeLibrary{}, queue.Options{})

	tests := []struct {
		name string
		req  queue.Request
		want error
	}{
		{"empty", queue.Request{}, queue.ErrMissingItem},
		{"whitespace only", queue.Request{Name: "  ", URL: "\t"}, queue.ErrMissingItem},
		{"both", queue.Request{Name: "a.mp3", URL: "http://x/a.mp3"}, queue.ErrAmbiguousItem},
		{"unknown file", queue.Request{Name: "nope.mp3"}, library.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Enqueue(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	if len(backend.enqueued) != 0 {
		t.Errorf("no command should reach the backend, got %q", backend.enqueued)
	}
}

func TestEnqueueLibraryFile(t *testing.T) {
	backend := &fakeBackend{reply: "12"}
	rec := &fakeRecorder{}
	svc := queue.NewService(backend, fakeLibrary{"my song.mp3": "/music/my song.mp3"}, queue.Options{Recorder: rec})

	res, err := svc.Enqueue(context.Background(), queue.Request{Name: "my song.mp3"})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	if res.Reference != "/music/my song.mp3" {
		t.Errorf("Reference = %q", res.Reference)
	}
	if res.Output != "12" {
		t.Errorf("Output = %q, want %q", res.Output, "12")
	}
	if len(backend.enqueued) != 1 || backend.enqueued[0] != "/music/my song.mp3" {
		t.Errorf("backend received %q", backend.enqueued)
	}
	if len(rec.entries) != 1 || rec.entries[0].Status != history.StatusQueued {
		t.Errorf("recorded %+v", rec.entries)
	}
}

func TestEnqueueResolvesPageURL(t *testing.T) {
	backend := &fakeBackend{}
	res := &fakeResolver{ref: "https://cdn.example.com/audio?id=1"}
	svc := queue.NewService(backend, fakeLibrary{}, queue.Options{
		Resolver:        res,
		NeedsResolution: resolver.NeedsResolution,
	})

	out, err := svc.Enqueue(context.Background(), queue.Request{URL: "https://youtu.be/abc"})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if !out.Resolved {
		t.Error("expected Resolved = true")
	}
	if out.Item != "https://youtu.be/abc" {
		t.Errorf("Item = %q", out.Item)
	}
	if len(res.calls) != 1 {
		t.Errorf("resolver calls = %q", res.calls)
	}
	if backend.enqueued[0] != "https://cdn.example.com/audio?id=1" {
		t.Errorf("backend received %q", backend.enqueued)
	}
}

func TestEnqueueDirectURLSkipsResolver(t *testing.T) {
	backend := &fakeBackend{}
	res := &fakeResolver{}
	svc := queue.NewService(backend, fakeLibrary{}, queue.Options{
		Resolver:        res,
		NeedsResolution: resolver.NeedsResolution,
	})

	out, err := svc.Enqueue(context.Background(), queue.Request{URL: "http://radio.example.com/my file.mp3"})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if out.Resolved || len(res.calls) != 0 {
		t.Error("direct audio URL should not be resolved")
	}
	if out.Reference != "http://radio.example.com/my%20file.mp3" {
		t.Errorf("Reference = %q, whitespace should be encoded", out.Reference)
	}
}

func TestEnqueueResolutionFailure(t *testing.T) {
	backend := &fakeBackend{}
	rec := &fakeRecorder{}
	rerr := &resolver.ResolutionError{Identifier: "https://youtu.be/gone", Stderr: "Video unavailable"}
	svc := queue.NewService(backend, fakeLibrary{}, queue.Options{
		Resolver:        &fakeResolver{err: rerr},
		NeedsResolution: resolver.NeedsResolution,
		Recorder:        rec,
	})

	_, err := svc.Enqueue(context.Background(), queue.Request{URL: "https://youtu.be/gone"})
	var got *resolver.ResolutionError
	if !errors.As(err, &got) {
		t.Fatalf("err = %v, want ResolutionError", err)
	}
	if len(backend.enqueued) != 0 {
		t.Error("nothing should be enqueued after a resolution failure")
	}
	if len(rec.entries) != 1 || rec.entries[0].Status != history.StatusFailed {
		t.Fatalf("recorded %+v", rec.entries)
	}
	if !strings.Contains(rec.entries[0].Error, "Video unavailable") {
		t.Errorf("recorded error = %q", rec.entries[0].Error)
	}
}

func TestEnqueueWithoutResolverQueuesAsIs(t *testing.T) {
	backend := &fakeBackend{}
	svc := queue.NewService(backend, fakeLibrary{}, queue.Options{NeedsResolution: resolver.NeedsResolution})

	out, err := svc.Enqueue(context.Background(), queue.Request{URL: "https://youtu.be/abc"})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if out.Resolved || out.Reference != "https://youtu.be/abc" {
		t.Errorf("result = %+v", out)
	}
}

func TestEnqueueBackendError(t *testing.T) {
	timeout := &telnet.TimeoutError{Addr: "liquidsoap:1234", Op: "read response"}
	svc := queue.NewService(&fakeBackend{err: timeout}, fakeLibrary{"a.mp3": "/music/a.mp3"}, queue.Options{})

	res, err := svc.Enqueue(context.Background(), queue.Request{Name: "a.mp3"})
	if res != nil {
		t.Errorf("result should be nil on error, got %+v", res)
	}
	if !telnet.IsTimeout(err) {
		t.Errorf("err = %v, want TimeoutError", err)
	}
}

func TestOnChangeFiresAfterSuccess(t *testing.T) {
	backend := &fakeBackend{}
	svc := queue.NewService(backend, fakeLibrary{"a.mp3": "/music/a.mp3"}, queue.Options{})

	calls := 0
	svc.OnChange(func() { calls++ })

	if _, err := svc.Enqueue(context.Background(), queue.Request{Name: "a.mp3"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Skip(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Enqueue(context.Background(), queue.Request{Name: "missing.mp3"}); err == nil {
		t.Fatal("expected error")
	}

	if calls != 2 {
		t.Errorf("OnChange calls = %d, want 2", calls)
	}
}

func TestSkip(t *testing.T) {
	backend := &fakeBackend{reply: "Done"}
	svc := queue.NewService(backend, fakeLibrary{}, queue.Options{})

	out, err := svc.Skip(context.Background())
	if err != nil {
		t.Fatalf("Skip failed: %v", err)
	}
	if out != "Done" || backend.skips != 1 {
		t.Errorf("out = %q, skips = %d", out, backend.skips)
	}
}

func TestNowPlaying(t *testing.T) {
	backend := &fakeBackend{metadata: "--- 3 ---\ntitle=\"Song\"\nartist=\"Band\"\n--- 2 ---\ntitle=\"Older\""}
	svc := queue.NewService(backend, fakeLibrary{}, queue.Options{})

	np, err := svc.NowPlaying(context.Background())
	if err != nil {
		t.Fatalf("NowPlaying failed: %v", err)
	}
	if np.Raw != backend.metadata {
		t.Errorf("Raw = %q", np.Raw)
	}
	if np.Metadata["title"] != "Song" || np.Metadata["artist"] != "Band" {
		t.Errorf("Metadata = %v", np.Metadata)
	}
}

func TestNowPlayingEmptyIsSuccess(t *testing.T) {
	svc := queue.NewService(&fakeBackend{}, fakeLibrary{}, queue.Options{})

	np, err := svc.NowPlaying(context.Background())
	if err != nil {
		t.Fatalf("NowPlaying failed: %v", err)
	}
	if np.Raw != "" || len(np.Metadata) != 0 {
		t.Errorf("np = %+v", np)
	}
}

func TestPing(t *testing.T) {
	if err := queue.NewService(&fakeBackend{}, fakeLibrary{}, queue.Options{}).Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}

	cerr := &telnet.ConnectionError{Addr: "x:1", Op: "dial", Err: errors.New("refused")}
	err := queue.NewService(&fakeBackend{err: cerr}, fakeLibrary{}, queue.Options{}).Ping(context.Background())
	if !errors.Is(err, cerr) {
		t.Errorf("err = %v, want wrapped ConnectionError", err)
	}
}
