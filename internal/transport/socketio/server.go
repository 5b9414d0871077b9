// Package socketio pushes now-playing updates to browsers and accepts queue
// commands over Socket.io.
package socketio

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/edumarques81/radioqueue/internal/domain/queue"
)

// QueueService is the subset of queue.Service used by live clients.
type QueueService interface {
	Enqueue(ctx context.Context, req queue.Request) (*queue.Result, error)
	Skip(ctx context.Context) (string, error)
	NowPlaying(ctx context.Context) (*queue.NowPlaying, error)
}

// Options configures a Server.
type Options struct {
	// MaxClients caps concurrent non-local clients. Zero means unlimited.
	MaxClients int
	// Debounce collapses bursts of queue changes into one broadcast.
	Debounce time.Duration
	// RequestTimeout bounds each command issued on behalf of a client.
	RequestTimeout time.Duration
}

const (
	defaultDebounce       = 300 * time.Millisecond
	defaultRequestTimeout = 90 * time.Second
)

// Server handles Socket.io connections and events.
type Server struct {
	io        *socket.Server
	queue     QueueService
	opts      Options
	limiter   *ConnectionLimiter
	debouncer *BroadcastDebouncer

	mu      sync.RWMutex
	clients map[string]*socket.Socket
	lastNow *queue.NowPlaying
}

// NewServer creates a new Socket.io server.
func NewServer(svc QueueService, opts Options) (*Server, error) {
	if svc == nil {
		return nil, errors.New("socketio: queue service is required")
	}
	if opts.Debounce <= 0 {
		opts.Debounce = defaultDebounce
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}

	ioOpts := socket.DefaultServerOptions()
	ioOpts.SetPingTimeout(20 * time.Second)
	ioOpts.SetPingInterval(25 * time.Second)
	ioOpts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	s := &Server{
		io:      socket.NewServer(nil, ioOpts),
		queue:   svc,
		opts:    opts,
		limiter: NewConnectionLimiter(opts.MaxClients),
		clients: make(map[string]*socket.Socket),
	}
	s.debouncer = NewBroadcastDebouncer(opts.Debounce, func() {
		s.BroadcastNowPlaying(context.Background(), true)
	})

	s.setupHandlers()

	return s, nil
}

// setupHandlers registers all Socket.io event handlers.
func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())
		remote := client.Handshake().Address

		_, evicted := s.limiter.TryAdd(clientID, remote)
		log.Info().Str("id", clientID).Str("remote", remote).Msg("Client connected")

		s.mu.Lock()
		s.clients[clientID] = client
		old := s.clients[evicted]
		s.mu.Unlock()

		if old != nil {
			log.Info().Str("id", evicted).Msg("Evicting oldest external client")
			old.Disconnect(true)
		}

		go s.pushNowPlaying(client)

		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if r, ok := args[0].(string); ok {
					reason = r
				}
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("Client disconnected")

			s.limiter.Remove(clientID)
			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
		})

		client.On("getNowPlaying", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("getNowPlaying")
			s.pushNowPlaying(client)
		})

		client.On("enqueue", func(args ...any) {
			log.Debug().Str("id", clientID).Interface("data", args).Msg("enqueue")
			req, ok := parseRequest(args)
			if !ok {
				client.Emit("pushError", queue.ErrMissingItem.Error())
				return
			}
			go s.enqueue(client, req)
		})

		client.On("skip", func(args ...any) {
			log.Debug().Str("id", clientID).Msg("skip")
			go s.skip(client)
		})
	})
}

// parseRequest reads {name, url} from the first event argument.
func parseRequest(args []any) (queue.Request, bool) {
	var req queue.Request
	if len(args) == 0 {
		return req, false
	}
	m, ok := args[0].(map[string]any)
	if !ok {
		return req, false
	}
	req.Name, _ = m["name"].(string)
	req.URL, _ = m["url"].(string)
	return req, true
}

func (s *Server) enqueue(client *socket.Socket, req queue.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	defer cancel()

	res, err := s.queue.Enqueue(ctx, req)
	if err != nil {
		client.Emit("pushError", err.Error())
		return
	}
	client.Emit("pushEnqueued", res)
}

func (s *Server) skip(client *socket.Socket) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	defer cancel()

	if _, err := s.queue.Skip(ctx); err != nil {
		client.Emit("pushError", err.Error())
	}
}

// pushNowPlaying sends the current track to a single client.
func (s *Server) pushNowPlaying(client *socket.Socket) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RequestTimeout)
	defer cancel()

	np, err := s.queue.NowPlaying(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to get now playing")
		client.Emit("pushError", err.Error())
		return
	}
	client.Emit("pushNowPlaying", np)
}

// NotifyChanged schedules a now-playing broadcast after the debounce window.
func (s *Server) NotifyChanged() {
	s.debouncer.Trigger()
}

// BroadcastNowPlaying queries the daemon and sends the result to every client.
// Unless force is set, nothing is sent when the metadata is unchanged.
// It reports whether a broadcast was sent.
func (s *Server) BroadcastNowPlaying(ctx context.Context, force bool) bool {
	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	np, err := s.queue.NowPlaying(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to get now playing for broadcast")
		return false
	}

	s.mu.Lock()
	changed := s.lastNow == nil || s.lastNow.Raw != np.Raw
	s.lastNow = np
	clientCount := len(s.clients)
	s.mu.Unlock()

	if !changed && !force {
		return false
	}

	s.io.Emit("pushNowPlaying", np)
	log.Debug().Str("title", np.Metadata["title"]).Int("clients", clientCount).Msg("Broadcast now playing")
	return true
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// StartWatcher polls the daemon every interval while clients are connected
// and broadcasts when the current track changes.
func (s *Server) StartWatcher(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Info().Dur("interval", interval).Msg("Now-playing watcher started")
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("Now-playing watcher stopped")
				return
			case <-ticker.C:
				if s.ClientCount() == 0 {
					continue
				}
				s.BroadcastNowPlaying(ctx, false)
			}
		}
	}()
}

// ServeHTTP implements http.Handler for the Socket.io server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close stops pending broadcasts and closes the Socket.io server.
func (s *Server) Close() error {
	s.debouncer.Stop()
	s.io.Close(nil)
	return nil
}
