// Package resolver turns page URLs (YouTube, SoundCloud, ...) into direct
// audio stream URLs using yt-dlp.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	ytdlp "github.com/lrstanley/go-ytdlp"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultFormat prefers audio-only streams.
	DefaultFormat = "bestaudio/best"

	// DefaultTimeout bounds one yt-dlp invocation.
	DefaultTimeout = 60 * time.Second
)

// ResolutionError reports a failed or empty resolution.
type ResolutionError struct {
	Identifier string
	Stderr     string
	Err        error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("resolve %s", e.Identifier)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// ErrNoOutput is wrapped by ResolutionError when yt-dlp printed no URL.
var ErrNoOutput = errors.New("resolver produced no output")

// Options configures the yt-dlp resolver.
type Options struct {
	Executable string        // yt-dlp binary; empty uses the library default lookup
	Format     string        // format selector, DefaultFormat when empty
	Timeout    time.Duration // per call, DefaultTimeout when zero
}

// runResult is the part of a yt-dlp run the resolver cares about.
type runResult struct {
	Stdout string
	Stderr string
}

type runFunc func(ctx context.Context, url string) (*runResult, error)

// YTDLP resolves identifiers by running `yt-dlp --get-url`.
type YTDLP struct {
	opts Options
	run  runFunc
}

// NewYTDLP creates a yt-dlp backed resolver.
func NewYTDLP(opts Options) *YTDLP {
	if opts.Format == "" {
		opts.Format = DefaultFormat
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	r := &YTDLP{opts: opts}
	r.run = r.runYTDLP
	return r
}

func (r *YTDLP) runYTDLP(ctx context.Context, url string) (*runResult, error) {
	cmd := ytdlp.New().
		GetURL().
		Format(r.opts.Format).
		NoPlaylist().
		NoWarnings()
	if r.opts.Executable != "" {
		cmd.SetExecutable(r.opts.Executable)
	}

	res, err := cmd.Run(ctx, url)
	if res == nil {
		return nil, err
	}
	return &runResult{Stdout: res.Stdout, Stderr: res.Stderr}, err
}

// Resolve returns the direct stream URL for identifier.
func (r *YTDLP) Resolve(ctx context.Context, identifier string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	started := time.Now()
	res, err := r.run(ctx, identifier)
	if err != nil {
		rerr := &ResolutionError{Identifier: identifier, Err: err}
		if res != nil {
			rerr.Stderr = strings.TrimSpace(res.Stderr)
		}
		log.Warn().Err(err).Str("id", identifier).Msg("yt-dlp failed")
		return "", rerr
	}

	ref := lastLine(res.Stdout)
	if ref == "" {
		return "", &ResolutionError{Identifier: identifier, Stderr: strings.TrimSpace(res.Stderr), Err: ErrNoOutput}
	}

	log.Info().
		Str("id", identifier).
		Dur("elapsed", time.Since(started)).
		Msg("Resolved stream URL")
	return ref, nil
}

// lastLine returns the final non-empty line of s.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

var installOnce sync.Once

// Install downloads yt-dlp into the library cache if it is not on PATH.
// Only the first call does any work.
func Install(ctx context.Context) error {
	var err error
	installOnce.Do(func() {
		var resolved *ytdlp.ResolvedInstall
		resolved, err = ytdlp.Install(ctx, nil)
		if err == nil {
			log.Info().Str("path", resolved.Executable).Str("version", resolved.Version).Msg("yt-dlp ready")
		}
	})
	return err
}
