// Package queue provides the enqueue, skip and now-playing operations exposed
// to HTTP and Socket.io clients.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/radioqueue/internal/infra/history"
)

var (
	// ErrMissingItem is returned when a request names neither a file nor a URL.
	ErrMissingItem = errors.New("missing 'name' or 'url'")

	// ErrAmbiguousItem is returned when a request names both a file and a URL.
	ErrAmbiguousItem = errors.New("give either 'name' or 'url', not both")
)

// Backend is the streaming daemon. Each call maps to exactly one daemon command.
type Backend interface {
	Enqueue(ctx context.Context, ref string) (string, error)
	Skip(ctx context.Context) (string, error)
	NowPlaying(ctx context.Context) (string, error)
	Ping(ctx context.Context) error
}

// Resolver converts a page URL into a directly streamable reference.
type Resolver interface {
	Resolve(ctx context.Context, identifier string) (string, error)
}

// Library maps file names to paths the daemon can open.
type Library interface {
	Lookup(name string) (string, error)
}

// Recorder stores the outcome of enqueue requests.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) (history.Entry, error)
}

// Options holds the optional collaborators of a Service.
type Options struct {
	Resolver        Resolver
	NeedsResolution func(identifier string) bool
	Recorder        Recorder
}

// Request names the item to enqueue: a library file or a URL.
type Request struct {
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Result describes a queued item.
type Result struct {
	Item      string `json:"item"`
	Reference string `json:"queued"`
	Resolved  bool   `json:"resolved"`
	Output    string `json:"out"`
}

// NowPlaying is the daemon's current track metadata.
type NowPlaying struct {
	Raw      string            `json:"raw"`
	Metadata map[string]string `json:"metadata"`
}

// Service handles queue operations.
type Service struct {
	backend Backend
	library Library
	opts    Options

	mu       sync.RWMutex
	onChange func()
}

// NewService creates a new queue service.
func NewService(backend Backend, lib Library, opts Options) *Service {
	return &Service{
		backend: backend,
		library: lib,
		opts:    opts,
	}
}

// OnChange registers fn to run after every successful enqueue or skip.
func (s *Service) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

func (s *Service) changed() {
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Enqueue validates req, resolves it to a daemon reference and pushes it.
func (s *Service) Enqueue(ctx context.Context, req Request) (*Result, error) {
	name := strings.TrimSpace(req.Name)
	url := strings.TrimSpace(req.URL)

	switch {
	case name == "" && url == "":
		return nil, ErrMissingItem
	case name != "" && url != "":
		return nil, ErrAmbiguousItem
	}

	res := &Result{Item: name}
	if url != "" {
		res.Item = url
	}

	err := s.prepare(ctx, name, url, res)
	if err == nil {
		res.Output, err = s.backend.Enqueue(ctx, res.Reference)
	}
	s.record(ctx, res, err)
	if err != nil {
		log.Warn().Err(err).Str("item", res.Item).Msg("Enqueue failed")
		return nil, err
	}

	s.changed()
	return res, nil
}

// prepare fills res.Reference with the command payload for the item.
func (s *Service) prepare(ctx context.Context, name, url string, res *Result) error {
	if name != "" {
		path, err := s.library.Lookup(name)
		if err != nil {
			return err
		}
		res.Reference = path
		return nil
	}

	ref := url
	if s.opts.NeedsResolution != nil && s.opts.NeedsResolution(url) {
		if s.opts.Resolver == nil {
			log.Warn().Str("url", url).Msg("No resolver configured, queueing page URL as-is")
		} else {
			resolved, err := s.opts.Resolver.Resolve(ctx, url)
			if err != nil {
				return err
			}
			ref = resolved
			res.Resolved = true
		}
	}
	res.Reference = EscapePayload(ref)
	return nil
}

func (s *Service) record(ctx context.Context, res *Result, err error) {
	if s.opts.Recorder == nil {
		return
	}
	entry := history.Entry{
		Item:        res.Item,
		Reference:   res.Reference,
		Resolved:    res.Resolved,
		Status:      history.StatusQueued,
		Output:      res.Output,
		RequestedAt: time.Now(),
	}
	if err != nil {
		entry.Status = history.StatusFailed
		entry.Error = err.Error()
	}
	// Failed requests are often failed because ctx expired.
	if _, rerr := s.opts.Recorder.Record(context.WithoutCancel(ctx), entry); rerr != nil {
		log.Warn().Err(rerr).Str("item", res.Item).Msg("Failed to record history")
	}
}

// Skip ends the current track.
func (s *Service) Skip(ctx context.Context) (string, error) {
	out, err := s.backend.Skip(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Skip failed")
		return "", err
	}
	s.changed()
	return out, nil
}

// NowPlaying returns the raw and parsed metadata of the current track.
func (s *Service) NowPlaying(ctx context.Context) (*NowPlaying, error) {
	raw, err := s.backend.NowPlaying(ctx)
	if err != nil {
		return nil, err
	}
	return &NowPlaying{Raw: raw, Metadata: ParseMetadata(raw)}, nil
}

// Ping checks that the daemon is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.backend.Ping(ctx); err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	return nil
}
