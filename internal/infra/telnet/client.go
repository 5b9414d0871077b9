// Package telnet implements the line-oriented command channel used to control
// the streaming daemon. Every call opens its own connection, optionally
// authenticates, sends one command and collects the reply.
package telnet

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultTimeout bounds a whole exchange, starting at the dial.
	DefaultTimeout = 3 * time.Second

	// DefaultAckMarker is what the daemon answers to an accepted credential.
	DefaultAckMarker = "OK"

	readChunk = 4096
)

// Config holds the per-call parameters of the command channel.
type Config struct {
	Host       string
	Port       int
	Credential string        // sent before the command when non-empty
	AckMarker  string        // required reply to Credential, defaults to "OK"
	Terminator string        // end-of-response marker; empty means wait for close
	Timeout    time.Duration // defaults to DefaultTimeout
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.AckMarker == "" {
		c.AckMarker = DefaultAckMarker
	}
	return c
}

// Client executes single commands against the daemon.
// It holds no connection and is safe for concurrent use.
type Client struct {
	cfg Config
}

// NewClient creates a command channel client.
func NewClient(cfg Config) *Client {
	return &Client{cfg: cfg.withDefaults()}
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Execute runs one command and returns the daemon's reply.
func (c *Client) Execute(ctx context.Context, command string) (string, error) {
	return Exec(ctx, c.cfg, command)
}

// Exec opens a connection described by cfg, sends command and returns the
// trimmed reply. The reply is complete when cfg.Terminator shows up or the
// remote end closes the connection. Partial replies are never returned with
// an error.
func Exec(ctx context.Context, cfg Config, command string) (string, error) {
	cfg = cfg.withDefaults()
	if strings.ContainsAny(command, "\r\n") {
		return "", ErrInvalidCommand
	}

	addr := cfg.Addr()
	started := time.Now()

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	// A caller deadline shorter than cfg.Timeout wins.
	budget := cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		budget = min(budget, deadline.Sub(started).Round(time.Millisecond))
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", classify(ctx, budget, addr, "dial", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	// Unblock pending I/O when the caller cancels before the deadline.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	ex := &exchange{conn: conn}

	if cfg.Credential != "" {
		if err := ex.writeLine(cfg.Credential); err != nil {
			return "", classify(ctx, budget, addr, "write credential", err)
		}
		found, err := ex.readUntil(cfg.AckMarker)
		if err != nil {
			return "", classify(ctx, budget, addr, "await acknowledgement", err)
		}
		if !found {
			return "", &ConnectionError{Addr: addr, Op: "await acknowledgement", Err: errClosedBeforeAck}
		}
		// Anything seen so far belongs to the handshake.
		ex.reset()
	}

	if err := ex.writeLine(command); err != nil {
		return "", classify(ctx, budget, addr, "write command", err)
	}

	terminated, err := ex.readUntil(cfg.Terminator)
	if err != nil {
		return "", classify(ctx, budget, addr, "read response", err)
	}

	out := ex.text()
	if terminated {
		out = out[:strings.Index(out, cfg.Terminator)]
	}
	out = strings.TrimSpace(out)

	log.Debug().
		Str("addr", addr).
		Str("command", command).
		Bool("terminated", terminated).
		Int("bytes", len(out)).
		Dur("elapsed", time.Since(started)).
		Msg("Command channel exchange complete")

	return out, nil
}

// exchange accumulates the bytes read from one connection.
type exchange struct {
	conn net.Conn
	buf  []byte
}

func (e *exchange) writeLine(line string) error {
	_, err := io.WriteString(e.conn, line+"\n")
	return err
}

// readUntil reads until marker appears in the accumulated text or the remote
// end closes. It reports whether the marker was seen; a clean close is not
// an error. An empty marker always waits for close.
func (e *exchange) readUntil(marker string) (bool, error) {
	if marker != "" && strings.Contains(string(e.buf), marker) {
		return true, nil
	}
	chunk := make([]byte, readChunk)
	for {
		n, err := e.conn.Read(chunk)
		if n > 0 {
			from := len(e.buf) - len(marker) + 1
			if from < 0 {
				from = 0
			}
			e.buf = append(e.buf, chunk[:n]...)
			if marker != "" && strings.Contains(string(e.buf[from:]), marker) {
				return true, nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			return false, err
		}
	}
}

func (e *exchange) reset() {
	e.buf = e.buf[:0]
}

func (e *exchange) text() string {
	return string(e.buf)
}
