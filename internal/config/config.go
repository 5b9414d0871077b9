// Package config builds the runtime configuration from flags, falling back to
// the environment variables used by the container deployment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/edumarques81/radioqueue/internal/infra/liquidsoap"
	"github.com/edumarques81/radioqueue/internal/infra/resolver"
	"github.com/edumarques81/radioqueue/internal/infra/telnet"
)

// Backend names.
const (
	BackendLiquidsoap = "liquidsoap"
	BackendMPD        = "mpd"
)

// Resolver names.
const (
	ResolverYTDLP = "ytdlp"
	ResolverNone  = "none"
)

// Config is the complete runtime configuration.
type Config struct {
	Port      string
	StaticDir string
	MusicDir  string
	DataDir   string
	Debug     bool

	Backend string

	LiqHost            string
	LiqPort            int
	LiqPassword        string
	LiqTerminator      string
	LiqTimeout         time.Duration
	LiqPushCommand     string
	LiqSkipCommand     string
	LiqMetadataCommand string

	MPDHost     string
	MPDPort     int
	MPDPassword string

	Resolver       string
	YTDLPPath      string
	YTDLPFormat    string
	YTDLPInstall   bool
	ResolveTimeout time.Duration

	PollInterval time.Duration
	MaxClients   int
	CORSOrigins  []string
}

// Load parses args (without the program name) using env for defaults.
func Load(args []string, env func(string) string) (*Config, error) {
	if env == nil {
		env = os.Getenv
	}
	get := func(key, def string) string {
		if v := env(key); v != "" {
			return v
		}
		return def
	}

	cfg := &Config{}
	fs := flag.NewFlagSet("radioq", flag.ContinueOnError)

	fs.StringVar(&cfg.Port, "port", get("PORT", "8080"), "HTTP server port")
	fs.StringVar(&cfg.StaticDir, "static", get("STATIC_DIR", ""), "Directory to serve static files from (optional)")
	fs.StringVar(&cfg.MusicDir, "music-dir", get("MUSIC_DIR", "/music"), "Directory of queueable audio files")
	fs.StringVar(&cfg.DataDir, "data-dir", get("DATA_DIR", "./data"), "Directory for the history database")
	fs.BoolVar(&cfg.Debug, "debug", envBool(get("DEBUG", ""), false), "Enable debug logging")

	fs.StringVar(&cfg.Backend, "backend", get("BACKEND", BackendLiquidsoap), "Streaming daemon: liquidsoap or mpd")

	fs.StringVar(&cfg.LiqHost, "liq-host", get("LIQ_HOST", "liquidsoap"), "Liquidsoap telnet host")
	fs.IntVar(&cfg.LiqPort, "liq-port", envInt(get("LIQ_PORT", ""), 1234), "Liquidsoap telnet port")
	fs.StringVar(&cfg.LiqPassword, "liq-password", get("LIQ_PASSWORD", ""), "Credential line sent before each command")
	fs.StringVar(&cfg.LiqTerminator, "liq-terminator", get("LIQ_TERMINATOR", "END"), "End-of-response marker, \\n escapes allowed (empty waits for close)")
	fs.DurationVar(&cfg.LiqTimeout, "liq-timeout", envDuration(get("LIQ_TIMEOUT", ""), telnet.DefaultTimeout), "Timeout per command")
	fs.StringVar(&cfg.LiqPushCommand, "liq-push-command", get("LIQ_PUSH_COMMAND", liquidsoap.DefaultPushCommand), "Command that enqueues a reference")
	fs.StringVar(&cfg.LiqSkipCommand, "liq-skip-command", get("LIQ_SKIP_COMMAND", liquidsoap.DefaultSkipCommand), "Command that skips the current track")
	fs.StringVar(&cfg.LiqMetadataCommand, "liq-metadata-command", get("LIQ_METADATA_COMMAND", liquidsoap.DefaultMetadataCommand), "Command that prints now-playing metadata")

	fs.StringVar(&cfg.MPDHost, "mpd-host", get("MPD_HOST", "localhost"), "MPD host")
	fs.IntVar(&cfg.MPDPort, "mpd-port", envInt(get("MPD_PORT", ""), 6600), "MPD port")
	fs.StringVar(&cfg.MPDPassword, "mpd-password", get("MPD_PASSWORD", ""), "MPD password")

	fs.StringVar(&cfg.Resolver, "resolver", get("RESOLVER", ResolverYTDLP), "URL resolver: ytdlp or none")
	fs.StringVar(&cfg.YTDLPPath, "ytdlp-path", get("YTDLP_PATH", ""), "yt-dlp executable (default: lookup)")
	fs.StringVar(&cfg.YTDLPFormat, "ytdlp-format", get("YTDLP_FORMAT", resolver.DefaultFormat), "yt-dlp format selector")
	fs.BoolVar(&cfg.YTDLPInstall, "ytdlp-install", envBool(get("YTDLP_INSTALL", ""), false), "Download yt-dlp at startup if missing")
	fs.DurationVar(&cfg.ResolveTimeout, "resolve-timeout", envDuration(get("RESOLVE_TIMEOUT", ""), resolver.DefaultTimeout), "Timeout per resolution")

	fs.DurationVar(&cfg.PollInterval, "poll-interval", envDuration(get("POLL_INTERVAL", ""), 5*time.Second), "Now-playing poll interval for live clients")
	fs.IntVar(&cfg.MaxClients, "max-clients", envInt(get("MAX_CLIENTS", ""), 10), "Maximum concurrent non-local Socket.io clients")

	fs.StringSliceVar(&cfg.CORSOrigins, "cors-origins", envList(get("CORS_ORIGINS", "*")), "Allowed browser origins for the API")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLiquidsoap, BackendMPD:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	switch c.Resolver {
	case ResolverYTDLP, ResolverNone:
	default:
		return fmt.Errorf("unknown resolver %q", c.Resolver)
	}
	if c.LiqPort <= 0 || c.LiqPort > 65535 {
		return fmt.Errorf("invalid liquidsoap port %d", c.LiqPort)
	}
	if c.MPDPort <= 0 || c.MPDPort > 65535 {
		return fmt.Errorf("invalid MPD port %d", c.MPDPort)
	}
	if c.LiqTimeout <= 0 {
		return fmt.Errorf("liquidsoap timeout must be positive")
	}
	if c.ResolveTimeout <= 0 {
		return fmt.Errorf("resolve timeout must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	return nil
}

// Telnet returns the command channel configuration.
func (c *Config) Telnet() telnet.Config {
	return telnet.Config{
		Host:       c.LiqHost,
		Port:       c.LiqPort,
		Credential: c.LiqPassword,
		Terminator: unescapeMarker(c.LiqTerminator),
		Timeout:    c.LiqTimeout,
	}
}

// LiquidsoapCommands returns the configured command names.
func (c *Config) LiquidsoapCommands() liquidsoap.Commands {
	return liquidsoap.Commands{
		Push:     c.LiqPushCommand,
		Skip:     c.LiqSkipCommand,
		Metadata: c.LiqMetadataCommand,
	}
}

// ResolverOptions returns the yt-dlp options.
func (c *Config) ResolverOptions() resolver.Options {
	return resolver.Options{
		Executable: c.YTDLPPath,
		Format:     c.YTDLPFormat,
		Timeout:    c.ResolveTimeout,
	}
}

// HistoryPath is the SQLite database location.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

var markerEscapes = strings.NewReplacer(`\n`, "\n", `\r`, "\r", `\t`, "\t")

// unescapeMarker expands \n, \r and \t so a terminator such as `\nEND` can
// be anchored to the start of a line.
func unescapeMarker(s string) string {
	return markerEscapes.Replace(s)
}

func envList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func envInt(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

func envBool(s string, def bool) bool {
	if v, err := strconv.ParseBool(s); err == nil {
		return v
	}
	return def
}

// envDuration accepts Go durations ("3s") and bare milliseconds ("3000").
func envDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}
