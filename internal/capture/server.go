// Package capture receives page captures from the browser userscript and
// writes them to the extractions directory as html/json file pairs.
package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/jmylchreest/qbank/internal/logger"
)

// DefaultAddr matches the endpoint the userscript posts to.
const DefaultAddr = "127.0.0.1:5000"

// Extraction is one page capture as posted by the userscript.
type Extraction struct {
	Timestamp    string            `json:"timestamp"`
	URL          string            `json:"url"`
	Hostname     string            `json:"hostname"`
	SiteName     string            `json:"siteName"`
	ElementCount int               `json:"elementCount"`
	BodyText     string            `json:"bodyText"`
	Elements     []json.RawMessage `json:"elements"`
	PageHTML     string            `json:"pageHTML,omitempty"`
}

// metadata is what lands in the .json file: everything but the page HTML.
type metadata struct {
	Timestamp    string            `json:"timestamp"`
	URL          string            `json:"url"`
	Hostname     string            `json:"hostname"`
	SiteName     string            `json:"siteName"`
	ElementCount int               `json:"elementCount"`
	BodyText     string            `json:"bodyText"`
	Elements     []json.RawMessage `json:"elements"`
}

// SavedFunc is called with the metadata path of each saved capture.
type SavedFunc func(ctx context.Context, jsonPath string)

// Option configures a Server.
type Option func(*Server)

// WithClock replaces the clock used for file timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// OnSaved registers a hook run after each capture is written.
func OnSaved(fn SavedFunc) Option {
	return func(s *Server) { s.onSaved = fn }
}

// Server writes captures to a directory and keeps them in memory for review.
type Server struct {
	dir     string
	now     func() time.Time
	onSaved SavedFunc

	mu       sync.Mutex
	next     int
	received []Extraction
}

// New returns a server writing to dir, creating it if needed. Capture
// numbering continues after the metadata files already in dir.
func New(dir string, opts ...Option) (*Server, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}
	existing, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	s := &Server{dir: dir, now: time.Now, next: len(existing)}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), cors.Default())

	r.GET("/", s.handleIndex)
	r.POST("/extract", s.handleExtract)
	r.GET("/extractions", s.handleList)
	r.GET("/extractions/:index", s.handleGet)
	r.POST("/clear", s.handleClear)
	return r
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("capture server listening", "addr", addr, "dir", s.dir)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) handleIndex(c *gin.Context) {
	s.mu.Lock()
	n := len(s.received)
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"status":            "running",
		"message":           "qbank capture server",
		"extractions_count": n,
		"endpoints": gin.H{
			"POST /extract":            "Receive a page capture",
			"GET /extractions":         "List received captures",
			"GET /extractions/<index>": "Get one capture",
			"POST /clear":              "Forget received captures",
		},
	})
}

func (s *Server) handleExtract(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || len(fields) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No data received"})
		return
	}
	var ext Extraction
	if err := json.Unmarshal(body, &ext); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	htmlPath, jsonPath, count, err := s.save(ext)
	if err != nil {
		logger.Error("saving capture failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	logger.Info("capture received",
		"url", ext.URL, "site", ext.SiteName, "elements", ext.ElementCount,
		"size", humanize.Bytes(uint64(len(ext.PageHTML))), "json", jsonPath)

	if s.onSaved != nil {
		s.onSaved(c.Request.Context(), jsonPath)
	}

	c.JSON(http.StatusOK, gin.H{
		"status":           "success",
		"message":          "Data received successfully",
		"extraction_count": count,
		"files":            gin.H{"html": htmlPath, "json": jsonPath},
	})
}

// save writes the html file first so a watcher never sees metadata without
// its sibling.
func (s *Server) save(ext Extraction) (htmlPath, jsonPath string, count int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := fmt.Sprintf("%s_%s_%d", s.now().Format("20060102_150405"), siteToken(ext.SiteName), s.next)
	htmlPath = filepath.Join(s.dir, base+".html")
	jsonPath = filepath.Join(s.dir, base+".json")
	if !within(s.dir, htmlPath) || !within(s.dir, jsonPath) {
		return "", "", 0, fmt.Errorf("capture name %q escapes %s", base, s.dir)
	}

	if err := os.WriteFile(htmlPath, []byte(ext.PageHTML), 0o644); err != nil {
		return "", "", 0, fmt.Errorf("writing html: %w", err)
	}

	meta := metadata{
		Timestamp:    ext.Timestamp,
		URL:          ext.URL,
		Hostname:     ext.Hostname,
		SiteName:     ext.SiteName,
		ElementCount: ext.ElementCount,
		BodyText:     ext.BodyText,
		Elements:     ext.Elements,
	}
	if meta.Elements == nil {
		meta.Elements = []json.RawMessage{}
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", "", 0, fmt.Errorf("encoding metadata: %w", err)
	}
	if err := os.WriteFile(jsonPath, data, 0o644); err != nil {
		return "", "", 0, fmt.Errorf("writing metadata: %w", err)
	}

	s.next++
	s.received = append(s.received, ext)
	return htmlPath, jsonPath, len(s.received), nil
}

// siteToken turns a site name into a file name token. Anything outside
// [A-Za-z0-9_-] becomes "_", so separators and dots never reach the path.
func siteToken(site string) string {
	if site == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, site)
}

// within reports whether path is dir itself or below it.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

type summary struct {
	Timestamp    string `json:"timestamp"`
	URL          string `json:"url"`
	SiteName     string `json:"siteName"`
	ElementCount int    `json:"elementCount"`
}

func (s *Server) handleList(c *gin.Context) {
	s.mu.Lock()
	out := make([]summary, 0, len(s.received))
	for _, ext := range s.received {
		out = append(out, summary{
			Timestamp:    ext.Timestamp,
			URL:          ext.URL,
			SiteName:     ext.SiteName,
			ElementCount: ext.ElementCount,
		})
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"total": len(out), "extractions": out})
}

func (s *Server) handleGet(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Extraction not found"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.received) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Extraction not found"})
		return
	}
	c.JSON(http.StatusOK, s.received[index])
}

func (s *Server) handleClear(c *gin.Context) {
	s.mu.Lock()
	s.received = nil
	s.mu.Unlock()

	logger.Info("captures cleared")
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "All extractions cleared"})
}
