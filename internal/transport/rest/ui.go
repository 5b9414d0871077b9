package rest

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/radioqueue/internal/version"
)

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type indexData struct {
	Title   string
	Version string
	Files   []string
	Error   string
	Live    bool
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	info := version.GetInfo()
	data := indexData{
		Title:   info.Name,
		Version: info.Version,
		Live:    s.deps.Socket != nil,
	}

	files, err := s.deps.Files.List()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list library for UI")
		data.Error = err.Error()
	}
	data.Files = files

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		log.Error().Err(err).Msg("Failed to render UI")
	}
}
