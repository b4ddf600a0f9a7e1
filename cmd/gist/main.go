// Command gist is the CLI entry point: index/search/watch directories from
// the shell, launch the interactive TUI, or run the HTTP API that the
// desktop frontend talks to. Grounded on the teacher's cmd/sift/main.go for
// the overall cobra structure, the project-local .toml config override, and
// the signal.NotifyContext Ctrl+C pattern.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/Saurav-kan/gist/internal/aichat"
	"github.com/Saurav-kan/gist/internal/ann/hnsw"
	"github.com/Saurav-kan/gist/internal/config"
	"github.com/Saurav-kan/gist/internal/embedding"
	"github.com/Saurav-kan/gist/internal/httpapi"
	"github.com/Saurav-kan/gist/internal/indexer"
	"github.com/Saurav-kan/gist/internal/logging"
	"github.com/Saurav-kan/gist/internal/search"
	"github.com/Saurav-kan/gist/internal/storage"
	"github.com/Saurav-kan/gist/internal/tui"
	"github.com/Saurav-kan/gist/internal/watcher"
)

var defaultAddr = "127.0.0.1:8787"

// components bundles every collaborator a subcommand might need, built once
// per invocation by openComponents.
type components struct {
	cfg      *config.AppConfig
	store    *storage.Storage
	index    *hnsw.Index
	embedder embedding.Provider
	log      *slog.Logger

	graphPath   string
	sidecarPath string
}

// openComponents loads config, opens Storage, and loads (or creates) the
// on-disk HNSW graph. Every subcommand, serve included, goes through it, so
// the graph round-trips through Load here and Save in close across
// invocations rather than being rebuilt from Storage every time.
func openComponents() (*components, error) {
	log := logging.New()

	cfg, err := config.LoadOrDefault()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	dataDir, err := config.DataDir()
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(dataDir, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	graphPath := filepath.Join(dataDir, "graph.bin")
	sidecarPath := filepath.Join(dataDir, "graph.meta.json")
	idx, err := hnsw.Load(graphPath, sidecarPath)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load index: %w", err)
	}

	embedder, err := embedding.NewProvider(cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build embedding provider: %w", err)
	}

	return &components{
		cfg:         cfg,
		store:       store,
		index:       idx,
		embedder:    embedder,
		log:         log,
		graphPath:   graphPath,
		sidecarPath: sidecarPath,
	}, nil
}

func (c *components) close() {
	if err := c.index.Save(c.graphPath, c.sidecarPath); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to save index: %v\n", err)
	}
	c.store.Close()
}

// loadProjectOverrides applies a .gist.toml file in the working directory,
// the project-local override the teacher's .sift.toml convention offered.
func loadProjectOverrides(cfg *config.AppConfig) {
	b, err := os.ReadFile(".gist.toml")
	if err != nil {
		return
	}
	var overrides struct {
		PerformanceMode string   `toml:"performance-mode"`
		IndexedDirs     []string `toml:"indexed-directories"`
	}
	if err := toml.Unmarshal(b, &overrides); err != nil {
		return
	}
	if overrides.PerformanceMode != "" {
		cfg.SetPerformanceMode(config.PerformanceMode(overrides.PerformanceMode))
	}
	if len(overrides.IndexedDirs) > 0 {
		cfg.IndexedDirectories = overrides.IndexedDirs
	}
}

func main() {
	root := &cobra.Command{
		Use:   "gist",
		Short: "Local semantic file search",
		Long:  "gist — offline semantic file search over your documents, powered by embeddings and an HNSW index.",
	}

	var addr string
	var serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API the desktop frontend talks to",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, err := openComponents()
			if err != nil {
				return err
			}
			defer c.close()
			loadProjectOverrides(c.cfg)

			engine := search.New(c.store, c.index, c.embedder, c.cfg)
			ix := indexer.New(c.store, c.index, c.embedder, c.cfg, c.log)

			w, err := watcher.New(ix, c.store, c.index, c.log)
			if err != nil {
				return fmt.Errorf("build watcher: %w", err)
			}
			for _, dir := range c.cfg.IndexedDirectories {
				if err := w.AddDirectory(dir); err != nil {
					c.log.Warn("watch directory", "dir", dir, "error", err)
				}
			}

			var chat aichat.Provider
			var parserModel string
			if c.cfg.AIFeaturesEnabled {
				chat, err = aichat.NewProvider(c.cfg)
				if err != nil {
					c.log.Warn("ai provider unavailable, chat endpoints will report disabled", "error", err)
				} else {
					parserModel = c.cfg.EmbeddingModel
				}
			}
			parser := search.NewQueryParser(chat, parserModel)

			if c.cfg.AutoIndex && len(c.cfg.IndexedDirectories) > 0 {
				go func() {
					if err := ix.PerformStartupScan(ctx, c.cfg.IndexedDirectories); err != nil {
						c.log.Warn("startup scan failed", "error", err)
					}
				}()
			}

			go func() {
				if err := w.Run(ctx); err != nil {
					c.log.Warn("file watcher stopped", "error", err)
				}
			}()

			srv := httpapi.New(c.store, engine, parser, ix, w, chat, c.cfg, c.log)

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", addr, err)
			}
			fmt.Fprintf(os.Stderr, "gist serving on http://%s\n", addr)
			return srv.Serve(ctx, ln)
		},
	}
	serveCmd.Flags().StringVar(&addr, "addr", defaultAddr, "address to listen on")
	root.AddCommand(serveCmd)

	// ---- gist index <dir> ---------------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "index <dir> [dir...]",
		Short: "Index all supported files in a directory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, err := openComponents()
			if err != nil {
				return err
			}
			defer c.close()

			ix := indexer.New(c.store, c.index, c.embedder, c.cfg, c.log)
			for _, dir := range args {
				fmt.Fprintf(os.Stderr, "Scanning %s…\n", dir)
				if err := ix.IndexDirectory(ctx, dir); err != nil {
					if isInterrupted(err) {
						fmt.Fprintln(os.Stderr, "\nInterrupted — saving partial index…")
						return nil
					}
					return err
				}
				if !containsDir(c.cfg.IndexedDirectories, dir) {
					c.cfg.IndexedDirectories = append(c.cfg.IndexedDirectories, dir)
				}
			}
			if err := c.cfg.Save(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to persist config: %v\n", err)
			}

			p := ix.Progress()
			fmt.Fprintf(os.Stderr, "Done. %d files indexed.\n", p.Done)
			return nil
		},
	})

	// ---- gist search <query> -------------------------------------------------
	var jsonOut bool
	var limit int
	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Non-interactive semantic search",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			c, err := openComponents()
			if err != nil {
				return err
			}
			defer c.close()

			engine := search.New(c.store, c.index, c.embedder, c.cfg)
			results, err := engine.Search(context.Background(), search.Request{Query: query, Limit: limit})
			if err != nil {
				return err
			}

			if len(results) == 0 {
				if jsonOut {
					fmt.Println("[]")
				} else {
					fmt.Println("no results")
				}
				return nil
			}
			if jsonOut {
				j, err := json.MarshalIndent(results, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal json: %w", err)
				}
				fmt.Println(string(j))
				return nil
			}
			for i, r := range results {
				fmt.Printf("%2d  %.3f  %s\n", i+1, r.Similarity, r.FilePath)
			}
			return nil
		},
	}
	searchCmd.Flags().BoolVar(&jsonOut, "json", false, "output search results as JSON")
	searchCmd.Flags().IntVar(&limit, "limit", 10, "maximum number of results")
	root.AddCommand(searchCmd)

	// ---- gist watch <dir> -----------------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "watch <dir> [dir...]",
		Short: "Index directories then watch them for changes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, err := openComponents()
			if err != nil {
				return err
			}
			defer c.close()

			ix := indexer.New(c.store, c.index, c.embedder, c.cfg, c.log)
			for _, dir := range args {
				fmt.Fprintf(os.Stderr, "Scanning %s…\n", dir)
				if err := ix.IndexDirectory(ctx, dir); err != nil {
					if !isInterrupted(err) {
						return err
					}
					fmt.Fprintln(os.Stderr, "\nInterrupted — saving partial index…")
				}
			}

			w, err := watcher.New(ix, c.store, c.index, c.log)
			if err != nil {
				return err
			}
			for _, dir := range args {
				if err := w.AddDirectory(dir); err != nil {
					return fmt.Errorf("watch %s: %w", dir, err)
				}
			}

			fmt.Fprintln(os.Stderr, "Watching for changes… (Ctrl+C to stop)")
			return w.Run(ctx)
		},
	})

	// ---- gist tui ---------------------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "tui",
		Short: "Launch interactive search interface",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openComponents()
			if err != nil {
				return err
			}
			defer c.close()

			engine := search.New(c.store, c.index, c.embedder, c.cfg)
			m := tui.New(c.store, engine)
			p := tea.NewProgram(m, tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	})

	// ---- gist stats ---------------------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openComponents()
			if err != nil {
				return err
			}
			defer c.close()

			records, err := c.store.ListAll()
			if err != nil {
				return err
			}
			var withVector int
			var totalBytes int64
			for _, r := range records {
				totalBytes += r.FileSize
				if r.HasVector() {
					withVector++
				}
			}
			fmt.Printf("files:        %d\n", len(records))
			fmt.Printf("with vector:  %d\n", withVector)
			fmt.Printf("total size:   %d bytes\n", totalBytes)
			fmt.Printf("index size:   %d entries\n", c.index.Len())
			return nil
		},
	})

	// ---- gist clear ---------------------------------------------------------
	var forceFlag bool
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all indexed data",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, err := config.DataDir()
			if err != nil {
				return err
			}
			if _, err := os.Stat(dataDir); os.IsNotExist(err) {
				fmt.Println("No index found — nothing to clear.")
				return nil
			}
			if !forceFlag {
				fmt.Printf("Remove %s? This cannot be undone. [y/N] ", dataDir)
				var ans string
				fmt.Scanln(&ans)
				if ans != "y" && ans != "Y" {
					fmt.Println("Aborted.")
					return nil
				}
			}
			if err := os.RemoveAll(dataDir); err != nil {
				return fmt.Errorf("clear: %w", err)
			}
			fmt.Println("Index cleared.")
			return nil
		},
	}
	clearCmd.Flags().BoolVar(&forceFlag, "force", false, "skip confirmation prompt")
	root.AddCommand(clearCmd)

	// ---- gist rebuild <dir> ---------------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "rebuild <dir> [dir...]",
		Short: "Wipe and rebuild the index from scratch",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, err := openComponents()
			if err != nil {
				return err
			}
			defer c.close()

			if err := c.store.ClearAll(); err != nil {
				return fmt.Errorf("clear storage: %w", err)
			}
			if err := c.index.Clear(); err != nil {
				return fmt.Errorf("clear index: %w", err)
			}

			ix := indexer.New(c.store, c.index, c.embedder, c.cfg, c.log)
			for _, dir := range args {
				fmt.Fprintf(os.Stderr, "Rebuilding index for %s…\n", dir)
				if err := ix.IndexDirectory(ctx, dir); err != nil {
					if !isInterrupted(err) {
						return err
					}
					fmt.Fprintln(os.Stderr, "\nInterrupted — saving partial index…")
				}
			}

			p := ix.Progress()
			fmt.Fprintf(os.Stderr, "Done. %d files indexed.\n", p.Done)
			return nil
		},
	})

	// ---- gist ask <file> <question> -------------------------------------------
	root.AddCommand(&cobra.Command{
		Use:   "ask <file> <question>",
		Short: "Ask the configured AI provider a question about a file",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openComponents()
			if err != nil {
				return err
			}
			defer c.close()

			if !c.cfg.AIFeaturesEnabled {
				return fmt.Errorf("ai features are disabled in config")
			}
			chat, err := aichat.NewProvider(c.cfg)
			if err != nil {
				return fmt.Errorf("build ai provider: %w", err)
			}

			path := args[0]
			question := strings.Join(args[1:], " ")
			content, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			messages := []aichat.Message{
				{Role: aichat.RoleSystem, Content: "You answer questions about the contents of a single local file. Be concise."},
				{Role: aichat.RoleUser, Content: fmt.Sprintf("File: %s\n\n%s\n\nQuestion: %s", path, string(content), question)},
			}
			answer, err := chat.Generate(context.Background(), messages)
			if err != nil {
				return fmt.Errorf("%s: %w", chat.Name(), err)
			}
			fmt.Println(answer)
			return nil
		},
	})

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func containsDir(dirs []string, dir string) bool {
	for _, d := range dirs {
		if d == dir {
			return true
		}
	}
	return false
}
