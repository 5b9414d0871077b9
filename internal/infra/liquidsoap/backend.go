// Package liquidsoap drives a Liquidsoap instance over its telnet command channel.
package liquidsoap

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/radioqueue/internal/infra/telnet"
)

// Default command names for a queue exposed as `request.queue(id="request")`.
const (
	DefaultPushCommand     = "request.push"
	DefaultSkipCommand     = "skip"
	DefaultMetadataCommand = "request.metadata"
	versionCommand         = "version"
)

// Commands names the server commands for each queue operation.
type Commands struct {
	Push     string
	Skip     string
	Metadata string
}

func (c Commands) withDefaults() Commands {
	if c.Push == "" {
		c.Push = DefaultPushCommand
	}
	if c.Skip == "" {
		c.Skip = DefaultSkipCommand
	}
	if c.Metadata == "" {
		c.Metadata = DefaultMetadataCommand
	}
	return c
}

// Executor runs one command line and returns the reply.
type Executor interface {
	Execute(ctx context.Context, command string) (string, error)
}

// Backend maps queue operations onto single command channel calls.
type Backend struct {
	exec     Executor
	commands Commands
}

// NewBackend creates a Liquidsoap backend on top of exec.
func NewBackend(exec Executor, commands Commands) *Backend {
	return &Backend{
		exec:     exec,
		commands: commands.withDefaults(),
	}
}

// Dial is a shortcut for NewBackend(telnet.NewClient(cfg), commands).
func Dial(cfg telnet.Config, commands Commands) *Backend {
	return NewBackend(telnet.NewClient(cfg), commands)
}

// Enqueue pushes ref onto the request queue and returns the request id.
func (b *Backend) Enqueue(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty reference")
	}
	out, err := b.exec.Execute(ctx, b.commands.Push+" "+ref)
	if err != nil {
		return "", err
	}
	log.Info().Str("ref", ref).Str("rid", out).Msg("Pushed request")
	return out, nil
}

// Skip ends the current track.
func (b *Backend) Skip(ctx context.Context) (string, error) {
	out, err := b.exec.Execute(ctx, b.commands.Skip)
	if err != nil {
		return "", err
	}
	log.Info().Str("out", out).Msg("Skipped track")
	return out, nil
}

// NowPlaying returns the raw metadata of the current request.
func (b *Backend) NowPlaying(ctx context.Context) (string, error) {
	return b.exec.Execute(ctx, b.commands.Metadata)
}

// Ping checks that the server answers commands.
func (b *Backend) Ping(ctx context.Context) error {
	out, err := b.exec.Execute(ctx, versionCommand)
	if err != nil {
		return err
	}
	if strings.HasPrefix(out, "ERROR") {
		return fmt.Errorf("liquidsoap: %s", out)
	}
	return nil
}
