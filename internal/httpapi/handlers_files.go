package httpapi

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Saurav-kan/gist/internal/giserr"
)

// fileInfo is one row of GET /api/files, grounded on files.rs's FileInfo
// (embedding_dimensions derived from the stored byte length / 4).
type fileInfo struct {
	ID                  int64  `json:"id"`
	FilePath            string `json:"file_path"`
	FileName            string `json:"file_name"`
	FileSize            int64  `json:"file_size"`
	FileType            string `json:"file_type"`
	ModifiedTime        int64  `json:"modified_time"`
	EmbeddingDimensions *int   `json:"embedding_dimensions,omitempty"`
}

func (s *Server) handleListFiles(c echo.Context) error {
	records, err := s.store.ListAll()
	if err != nil {
		return writeError(c, err)
	}

	infos := make([]fileInfo, len(records))
	for i, r := range records {
		info := fileInfo{ID: r.ID, FilePath: r.FilePath, FileName: r.FileName, FileSize: r.FileSize, FileType: r.FileType, ModifiedTime: r.ModifiedTime}
		if r.HasVector() {
			dims := int(r.EmbeddingLength / 4)
			info.EmbeddingDimensions = &dims
		}
		infos[i] = info
	}
	return c.JSON(http.StatusOK, map[string]any{"files": infos, "total_count": len(infos)})
}

// directoryItem is one entry returned by browse/tree/search, grounded on
// files_browser.rs's DirectoryItem.
type directoryItem struct {
	Name         string  `json:"name"`
	Path         string  `json:"path"`
	IsDirectory  bool    `json:"is_directory"`
	Size         *int64  `json:"size,omitempty"`
	ModifiedTime *int64  `json:"modified_time,omitempty"`
	FileType     *string `json:"file_type,omitempty"`
}

func dirEntryToItem(dir string, e os.DirEntry) directoryItem {
	item := directoryItem{Name: e.Name(), Path: filepath.Join(dir, e.Name()), IsDirectory: e.IsDir()}
	if info, err := e.Info(); err == nil {
		size := info.Size()
		mod := info.ModTime().Unix()
		item.Size = &size
		item.ModifiedTime = &mod
		if !e.IsDir() {
			ext := strings.TrimPrefix(filepath.Ext(e.Name()), ".")
			item.FileType = &ext
		}
	}
	return item
}

// handleFilesBrowse implements spec §6's thin, contract-only directory
// browse endpoint: list the immediate children of ?path (or the home
// directory when path is empty), optionally sorted by ?sort/?order.
func (s *Server) handleFilesBrowse(c echo.Context) error {
	dir := c.QueryParam("path")
	if dir == "" || dir == "::this-pc" {
		home, err := os.UserHomeDir()
		if err != nil {
			return writeError(c, giserr.Wrap(giserr.Internal, "resolve home directory", err))
		}
		dir = home
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return writeError(c, giserr.Wrap(giserr.NotFound, "browse directory", err))
	}

	items := make([]directoryItem, len(entries))
	for i, e := range entries {
		items[i] = dirEntryToItem(dir, e)
	}
	sortDirectoryItems(items, c.QueryParam("sort"), c.QueryParam("order"))

	return c.JSON(http.StatusOK, map[string]any{"path": dir, "items": items})
}

func sortDirectoryItems(items []directoryItem, sortBy, order string) {
	less := func(i, j int) bool { return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name) }
	switch sortBy {
	case "size":
		less = func(i, j int) bool { return derefInt64(items[i].Size) < derefInt64(items[j].Size) }
	case "date_modified":
		less = func(i, j int) bool { return derefInt64(items[i].ModifiedTime) < derefInt64(items[j].ModifiedTime) }
	case "type":
		less = func(i, j int) bool { return derefStr(items[i].FileType) < derefStr(items[j].FileType) }
	}
	sort.SliceStable(items, func(i, j int) bool { return less(i, j) })
	if order == "desc" {
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
	}
}

func derefInt64(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// handleFilesTree recurses into path up to a shallow depth, since a full
// recursive tree over an arbitrary directory is unbounded — spec §6 marks
// this endpoint peripheral/contract-only.
func (s *Server) handleFilesTree(c echo.Context) error {
	dir := c.QueryParam("path")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return writeError(c, giserr.Wrap(giserr.Internal, "resolve home directory", err))
		}
		dir = home
	}
	maxDepth := 2
	if d := c.QueryParam("depth"); d != "" {
		if parsed, err := strconv.Atoi(d); err == nil && parsed >= 0 {
			maxDepth = parsed
		}
	}

	root, err := buildTree(dir, maxDepth)
	if err != nil {
		return writeError(c, giserr.Wrap(giserr.NotFound, "build directory tree", err))
	}
	return c.JSON(http.StatusOK, root)
}

type treeNode struct {
	Name        string     `json:"name"`
	Path        string     `json:"path"`
	IsDirectory bool       `json:"is_directory"`
	Children    []treeNode `json:"children,omitempty"`
}

func buildTree(dir string, depth int) (treeNode, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return treeNode{}, err
	}
	node := treeNode{Name: filepath.Base(dir), Path: dir, IsDirectory: info.IsDir()}
	if !info.IsDir() || depth <= 0 {
		return node, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return node, nil
	}
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		child, err := buildTree(filepath.Join(dir, e.Name()), depth-1)
		if err != nil {
			continue
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

// handleFilesSearch walks ?path (default: home) for entries whose name
// contains ?query, bounded by ?limit, grounded on files_browser.rs's
// search_files.
func (s *Server) handleFilesSearch(c echo.Context) error {
	query := strings.ToLower(c.QueryParam("query"))
	if query == "" {
		return c.JSON(http.StatusOK, map[string]any{"results": []directoryItem{}, "count": 0})
	}

	dir := c.QueryParam("path")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return writeError(c, giserr.Wrap(giserr.Internal, "resolve home directory", err))
		}
		dir = home
	}
	limit := 100
	if l := c.QueryParam("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return writeError(c, giserr.New(giserr.NotFound, "search path not found"))
	}

	var results []directoryItem
	err = filepath.WalkDir(dir, func(path string, e os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if len(results) >= limit {
			return filepath.SkipAll
		}
		if path != dir && strings.Contains(strings.ToLower(e.Name()), query) {
			results = append(results, dirEntryToItem(filepath.Dir(path), e))
		}
		return nil
	})
	if err != nil {
		return writeError(c, giserr.Wrap(giserr.Internal, "walk directory", err))
	}
	return c.JSON(http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

// handleFilesSpecialFolders reports the well-known per-user folders,
// grounded on files_browser.rs's get_special_folders (which uses the Rust
// `dirs` crate; Go's os.UserHomeDir plus filepath.Join covers the same set
// without an extra dependency, since no pack example imports a Go
// equivalent of `dirs` — DESIGN.md).
func (s *Server) handleFilesSpecialFolders(c echo.Context) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return writeError(c, giserr.Wrap(giserr.Internal, "resolve home directory", err))
	}
	folders := map[string]string{
		"home":      home,
		"desktop":   filepath.Join(home, "Desktop"),
		"downloads": filepath.Join(home, "Downloads"),
		"documents": filepath.Join(home, "Documents"),
	}
	return c.JSON(http.StatusOK, folders)
}

type createFolderBody struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

func (s *Server) handleFilesCreateFolder(c echo.Context) error {
	var body createFolderBody
	if err := c.Bind(&body); err != nil || body.Path == "" || body.Name == "" {
		return writeError(c, giserr.New(giserr.BadRequest, "path and name are required"))
	}
	newPath := filepath.Join(body.Path, body.Name)
	if err := os.Mkdir(newPath, 0o755); err != nil {
		return writeError(c, giserr.Wrap(giserr.Internal, "create folder", err))
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "path": newPath})
}

type deleteBody struct {
	Path string `json:"path"`
}

func (s *Server) handleFilesDelete(c echo.Context) error {
	var body deleteBody
	if err := c.Bind(&body); err != nil || body.Path == "" {
		return writeError(c, giserr.New(giserr.BadRequest, "path is required"))
	}

	info, err := os.Stat(body.Path)
	if err != nil {
		return writeError(c, giserr.New(giserr.NotFound, "path does not exist"))
	}

	if info.IsDir() {
		records, err := s.store.ListAll()
		if err == nil {
			for _, r := range records {
				if r.FilePath == body.Path || strings.HasPrefix(r.FilePath, body.Path+string(os.PathSeparator)) {
					_ = s.store.Delete(r.FilePath)
				}
			}
		}
		err = os.RemoveAll(body.Path)
		if err != nil {
			return writeError(c, giserr.Wrap(giserr.Internal, "delete directory", err))
		}
	} else {
		_ = s.store.DeleteWithSections(body.Path)
		if err := os.Remove(body.Path); err != nil {
			return writeError(c, giserr.Wrap(giserr.Internal, "delete file", err))
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

type renameBody struct {
	Path    string `json:"path"`
	NewName string `json:"new_name"`
}

func (s *Server) handleFilesRename(c echo.Context) error {
	var body renameBody
	if err := c.Bind(&body); err != nil || body.Path == "" || body.NewName == "" {
		return writeError(c, giserr.New(giserr.BadRequest, "path and new_name are required"))
	}

	info, err := os.Stat(body.Path)
	if err != nil {
		return writeError(c, giserr.New(giserr.NotFound, "path does not exist"))
	}
	newPath := filepath.Join(filepath.Dir(body.Path), body.NewName)

	if info.IsDir() {
		records, err := s.store.ListAll()
		if err == nil {
			for _, r := range records {
				if r.FilePath == body.Path || strings.HasPrefix(r.FilePath, body.Path+string(os.PathSeparator)) {
					_ = s.store.Delete(r.FilePath)
				}
			}
		}
	} else {
		_ = s.store.DeleteWithSections(body.Path)
	}

	if err := os.Rename(body.Path, newPath); err != nil {
		return writeError(c, giserr.Wrap(giserr.Internal, "rename", err))
	}
	return c.JSON(http.StatusOK, map[string]any{"success": true, "new_path": newPath})
}
