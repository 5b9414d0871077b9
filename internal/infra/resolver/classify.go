package resolver

import (
	"net/url"
	"path"
	"strings"
)

// pageHosts serve HTML pages that wrap the media rather than the media itself.
var pageHosts = []string{
	"youtube.com",
	"youtu.be",
	"music.youtube.com",
	"soundcloud.com",
	"bandcamp.com",
	"vimeo.com",
	"mixcloud.com",
	"twitch.tv",
}

// directExtensions are played by the daemon without resolution.
var directExtensions = map[string]bool{
	".mp3":  true,
	".ogg":  true,
	".oga":  true,
	".opus": true,
	".m4a":  true,
	".aac":  true,
	".flac": true,
	".wav":  true,
	".m3u":  true,
	".m3u8": true,
	".pls":  true,
}

// NeedsResolution reports whether identifier is a page URL that yt-dlp has to
// turn into a stream URL first. Local paths and non-HTTP URIs never do.
func NeedsResolution(identifier string) bool {
	u, err := url.Parse(strings.TrimSpace(identifier))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}

	host := strings.ToLower(u.Hostname())
	for _, h := range pageHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}

	return !directExtensions[strings.ToLower(path.Ext(u.Path))]
}
