package httpapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Saurav-kan/gist/internal/giserr"
)

type indexStartBody struct {
	Path string `json:"path"`
}

// handleIndexStart kicks off IndexDirectory in the background and returns
// immediately; progress is polled via GET /api/index/status. A second call
// while one is running surfaces the indexer's Busy error (spec §4.5/§5).
func (s *Server) handleIndexStart(c echo.Context) error {
	var body indexStartBody
	if err := c.Bind(&body); err != nil || body.Path == "" {
		return writeError(c, giserr.New(giserr.BadRequest, "path is required"))
	}

	if s.indexer.IsIndexing() {
		return writeError(c, giserr.New(giserr.Busy, "indexing already in progress"))
	}

	go func() {
		if err := s.indexer.IndexDirectory(context.Background(), body.Path); err != nil {
			s.log.Warn("index directory failed", "path", body.Path, "error", err)
			return
		}
		if s.watch != nil {
			if err := s.watch.AddDirectory(body.Path); err != nil {
				s.log.Warn("watch newly indexed directory failed", "path", body.Path, "error", err)
			}
		}
	}()

	return c.JSON(http.StatusOK, map[string]any{"started": true, "path": body.Path})
}

// handleIndexClear wipes all indexed metadata and embeddings (spec §6).
func (s *Server) handleIndexClear(c echo.Context) error {
	if err := s.store.ClearAll(); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"cleared": true})
}

// indexStatusResponse mirrors indexer.Progress, JSON-shaped for the client.
type indexStatusResponse struct {
	Running     bool   `json:"running"`
	Done        int    `json:"done"`
	Total       int    `json:"total"`
	CurrentPath string `json:"current_path,omitempty"`
	LastError   string `json:"last_error,omitempty"`
}

func (s *Server) handleIndexStatus(c echo.Context) error {
	p := s.indexer.Progress()
	return c.JSON(http.StatusOK, indexStatusResponse{
		Running:     p.Running,
		Done:        p.Done,
		Total:       p.Total,
		CurrentPath: p.CurrentPath,
		LastError:   p.LastError,
	})
}
