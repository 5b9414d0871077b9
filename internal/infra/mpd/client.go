// Package mpd provides a queue backend on top of the gompd MPD client.
package mpd

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"
)

// Client wraps the MPD client with reconnection logic.
type Client struct {
	mu       sync.Mutex
	client   *mpd.Client
	host     string
	port     int
	password string
	musicDir string
}

// NewClient creates a new MPD client wrapper.
func NewClient(host string, port int, password string) *Client {
	return &Client{
		host:     host,
		port:     port,
		password: password,
	}
}

// SetMusicDir sets the local path of MPD's music directory. Absolute
// references below it are sent relative to that directory, since MPD only
// accepts absolute paths from clients on its local socket.
func (c *Client) SetMusicDir(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.musicDir = dir
}

// uriForLocked maps ref onto a URI MPD accepts over TCP (must hold lock).
func (c *Client) uriForLocked(ref string) string {
	if c.musicDir == "" || !filepath.IsAbs(ref) {
		return ref
	}
	rel, err := filepath.Rel(c.musicDir, ref)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return ref
	}
	return filepath.ToSlash(rel)
}

// Connect establishes connection to MPD.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectLocked()
}

// connectLocked establishes connection (must hold lock).
func (c *Client) connectLocked() error {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	log.Info().Str("addr", addr).Msg("Connecting to MPD")

	client, err := mpd.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to MPD: %w", err)
	}

	if c.password != "" {
		if err := client.Command("password %s", c.password).OK(); err != nil {
			client.Close()
			return fmt.Errorf("MPD authentication failed: %w", err)
		}
	}

	c.client = client
	log.Info().Msg("Connected to MPD")
	return nil
}

// ensureConnectedLocked checks the connection and reconnects if needed (must hold lock).
func (c *Client) ensureConnectedLocked() error {
	if c.client == nil {
		return c.connectLocked()
	}

	if err := c.client.Ping(); err != nil {
		log.Warn().Err(err).Msg("MPD connection lost, reconnecting...")
		c.client.Close()
		c.client = nil
		return c.connectLocked()
	}

	return nil
}

// do runs fn against a live connection.
func (c *Client) do(ctx context.Context, fn func(*mpd.Client) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnectedLocked(); err != nil {
		return err
	}
	return fn(c.client)
}

// Close closes the MPD connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// Ping checks if MPD is reachable, connecting if necessary.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, func(m *mpd.Client) error {
		return m.Ping()
	})
}

// Enqueue adds a URI to the end of the queue. MPD returns no id for "add".
func (c *Client) Enqueue(ctx context.Context, uri string) (string, error) {
	if uri == "" {
		return "", fmt.Errorf("empty reference")
	}
	err := c.do(ctx, func(m *mpd.Client) error {
		uri = c.uriForLocked(uri)
		return m.Add(uri)
	})
	if err != nil {
		return "", err
	}
	log.Info().Str("uri", uri).Msg("Added to MPD queue")
	return "", nil
}

// Skip plays the next song.
func (c *Client) Skip(ctx context.Context) (string, error) {
	err := c.do(ctx, func(m *mpd.Client) error {
		return m.Next()
	})
	if err != nil {
		return "", err
	}
	log.Info().Msg("Skipped to next MPD song")
	return "", nil
}

// NowPlaying returns the current song as key="value" lines.
func (c *Client) NowPlaying(ctx context.Context) (string, error) {
	var song mpd.Attrs
	err := c.do(ctx, func(m *mpd.Client) error {
		var err error
		song, err = m.CurrentSong()
		return err
	})
	if err != nil {
		return "", err
	}
	return formatAttrs(song), nil
}

// formatAttrs renders MPD attributes the way Liquidsoap prints metadata,
// lower-casing the tag names.
func formatAttrs(attrs mpd.Attrs) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return strings.ToLower(keys[i]) < strings.ToLower(keys[j])
	})

	var b strings.Builder
	for _, k := range keys {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s=%q", strings.ToLower(k), attrs[k])
	}
	return b.String()
}
