// Package httpapi exposes gist's core components over the HTTP route
// table spec §6 defines: health, settings, system info, search/parse,
// file browsing, index lifecycle and the optional AI endpoints. Grounded
// on vvoland-cagent's pkg/server/server.go for the echo wiring (group
// under /api, CORS + logger middleware, one handler method per route) and
// on original_source's axum handlers for the response envelope shape
// (JSON success body on 2xx, `{"message": ...}` on 4xx/5xx).
package httpapi

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Saurav-kan/gist/internal/aichat"
	"github.com/Saurav-kan/gist/internal/config"
	"github.com/Saurav-kan/gist/internal/giserr"
	"github.com/Saurav-kan/gist/internal/indexer"
	"github.com/Saurav-kan/gist/internal/search"
	"github.com/Saurav-kan/gist/internal/storage"
	"github.com/Saurav-kan/gist/internal/watcher"
)

// Server wires the core components into an echo router. chat may be nil —
// the AI endpoints answer 200 with success=false until cfg.AIFeaturesEnabled
// and a provider are both present.
type Server struct {
	e       *echo.Echo
	store   *storage.Storage
	engine  *search.Engine
	parser  *search.QueryParser
	indexer *indexer.Indexer
	watch   *watcher.Watcher
	chat    aichat.Provider
	cfg     *config.AppConfig
	log     *slog.Logger
}

// New builds a Server and registers every route from spec §6's table.
// watch may be nil if the caller runs without a live FileWatcher.
func New(store *storage.Storage, engine *search.Engine, parser *search.QueryParser, ix *indexer.Indexer, watch *watcher.Watcher, chat aichat.Provider, cfg *config.AppConfig, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORS())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	s := &Server{e: e, store: store, engine: engine, parser: parser, indexer: ix, watch: watch, chat: chat, cfg: cfg, log: log}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	api := s.e.Group("/api")

	api.GET("/health", s.handleHealth)

	api.GET("/settings", s.handleGetSettings)
	api.PUT("/settings", s.handlePutSettings)
	api.GET("/system-info", s.handleSystemInfo)

	api.POST("/search", s.handleSearch)
	api.POST("/search/parse", s.handleSearchParse)

	api.GET("/files", s.handleListFiles)
	api.GET("/files/browse", s.handleFilesBrowse)
	api.GET("/files/tree", s.handleFilesTree)
	api.GET("/files/search", s.handleFilesSearch)
	api.GET("/files/special-folders", s.handleFilesSpecialFolders)
	api.POST("/files/create-folder", s.handleFilesCreateFolder)
	api.POST("/files/delete", s.handleFilesDelete)
	api.PUT("/files/rename", s.handleFilesRename)

	api.POST("/index/start", s.handleIndexStart)
	api.POST("/index/clear", s.handleIndexClear)
	api.GET("/index/status", s.handleIndexStatus)

	api.POST("/ai/summarize", s.handleAISummarize)
	api.POST("/ai/chat", s.handleAIChat)
}

// Serve blocks serving ln until ctx is cancelled, mirroring
// vvoland-cagent's Server.Serve.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := http.Server{Handler: s.e}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			s.log.Error("http server stopped", "error", err)
			return err
		}
		return nil
	}
}

// writeError renders err as spec §6's structured 4xx/generic 5xx envelope.
func writeError(c echo.Context, err error) error {
	status := statusFor(giserr.KindOf(err))
	return c.JSON(status, map[string]string{"message": err.Error()})
}

func statusFor(kind giserr.Kind) int {
	switch kind {
	case giserr.BadRequest:
		return http.StatusBadRequest
	case giserr.NotFound:
		return http.StatusNotFound
	case giserr.Busy:
		return http.StatusConflict
	case giserr.Timeout:
		return http.StatusRequestTimeout
	case giserr.Transient:
		return http.StatusServiceUnavailable
	case giserr.Upstream:
		return http.StatusBadGateway
	case giserr.Corrupt:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
