package capture

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var fixed = time.Date(2025, 11, 16, 15, 9, 29, 0, time.Local)

func newTestServer(t *testing.T, opts ...Option) (*Server, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "extractions")
	s, err := New(dir, append([]Option{WithClock(func() time.Time { return fixed })}, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s, dir
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const capture = `{
	"timestamp": "2025-11-16T15:09:29Z",
	"url": "https://mksap.example/q/0",
	"hostname": "mksap.example",
	"siteName": "MKSAP 19",
	"elementCount": 2,
	"bodyText": "Which drug?",
	"elements": [{"tag": "p", "selector": "p.q", "text": "Which drug?"}],
	"pageHTML": "<html><body><p class=\"q\">Which drug?</p></body></html>"
}`

func TestExtract_WritesFilePair(t *testing.T) {
	var saved []string
	s, dir := newTestServer(t, OnSaved(func(_ context.Context, p string) { saved = append(saved, p) }))
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/extract", capture)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	base := "20251116_150929_MKSAP_19_0"
	html, err := os.ReadFile(filepath.Join(dir, base+".html"))
	if err != nil {
		t.Fatalf("html file: %v", err)
	}
	if string(html) != `<html><body><p class="q">Which drug?</p></body></html>` {
		t.Errorf("html = %q", html)
	}

	raw, err := os.ReadFile(filepath.Join(dir, base+".json"))
	if err != nil {
		t.Fatalf("json file: %v", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatal(err)
	}
	if _, ok := meta["pageHTML"]; ok {
		t.Error("metadata must not carry pageHTML")
	}
	if meta["url"] != "https://mksap.example/q/0" || meta["siteName"] != "MKSAP 19" {
		t.Errorf("metadata = %v", meta)
	}
	if els, _ := meta["elements"].([]any); len(els) != 1 {
		t.Errorf("elements = %v", meta["elements"])
	}

	if len(saved) != 1 || saved[0] != filepath.Join(dir, base+".json") {
		t.Errorf("saved hook = %v", saved)
	}

	var resp struct {
		Status string `json:"status"`
		Count  int    `json:"extraction_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "success" || resp.Count != 1 {
		t.Errorf("response = %+v", resp)
	}
}

func TestExtract_CounterContinuesAfterExistingFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "extractions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"a.json", "b.json", "c.html"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	s, err := New(dir, WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatal(err)
	}
	h := s.Handler()
	do(t, h, http.MethodPost, "/extract", `{"siteName":"ACEP","pageHTML":"<p/>"}`)
	do(t, h, http.MethodPost, "/extract", `{"pageHTML":"<p/>"}`)

	for _, name := range []string{"20251116_150929_ACEP_2.json", "20251116_150929_unknown_3.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
}

func TestExtract_SiteNameStaysInDirectory(t *testing.T) {
	s, dir := newTestServer(t)
	h := s.Handler()

	req := httptest.NewRequest(http.MethodPost, "/extract",
		strings.NewReader(`{"siteName":"x/../../../escaped","pageHTML":"<p/>"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	parent := filepath.Dir(dir)
	for _, p := range []string{filepath.Join(parent, "escaped_0.html"), filepath.Join(filepath.Dir(parent), "escaped_0.html")} {
		if _, err := os.Stat(p); err == nil {
			t.Errorf("capture written outside the directory: %s", p)
		}
	}
	for _, ext := range []string{".html", ".json"} {
		name := "20251116_150929_x__________escaped_0" + ext
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
}

func TestSiteToken(t *testing.T) {
	tests := map[string]string{
		"":             "unknown",
		"MKSAP 19":     "MKSAP_19",
		"ACEP-Peer":    "ACEP-Peer",
		"../etc":       "___etc",
		`a\b/c`:        "a_b_c",
		"Médecine":     "M_decine",
		"x/../../../e": "x__________e",
	}
	for in, want := range tests {
		if got := siteToken(in); got != want {
			t.Errorf("siteToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWithin(t *testing.T) {
	dir := filepath.Join("tmp", "extractions")
	tests := []struct {
		path string
		want bool
	}{
		{filepath.Join(dir, "a.html"), true},
		{filepath.Join(dir, "..a.html"), true},
		{filepath.Join(dir, "..", "a.html"), false},
		{filepath.Join("tmp", "other", "a.html"), false},
	}
	for _, tt := range tests {
		if got := within(dir, tt.path); got != tt.want {
			t.Errorf("within(%q, %q) = %v, want %v", dir, tt.path, got, tt.want)
		}
	}
}

func TestExtract_RejectsEmpty(t *testing.T) {
	s, dir := newTestServer(t)
	h := s.Handler()

	for _, body := range []string{"", "{}", "not json", `{"elementCount":"many"}`} {
		if rec := do(t, h, http.MethodPost, "/extract", body); rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("files written = %d, want 0", len(entries))
	}
}

func TestExtractions_ListGetClear(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	do(t, h, http.MethodPost, "/extract", capture)

	rec := do(t, h, http.MethodGet, "/extractions", "")
	var list struct {
		Total       int       `json:"total"`
		Extractions []summary `json:"extractions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if list.Total != 1 || list.Extractions[0].SiteName != "MKSAP 19" {
		t.Errorf("list = %+v", list)
	}

	rec = do(t, h, http.MethodGet, "/extractions/0", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "pageHTML") {
		t.Errorf("get = %d %s", rec.Code, rec.Body)
	}
	for _, path := range []string{"/extractions/1", "/extractions/-1", "/extractions/x"} {
		if rec := do(t, h, http.MethodGet, path, ""); rec.Code != http.StatusNotFound {
			t.Errorf("%s: status = %d, want 404", path, rec.Code)
		}
	}

	if rec := do(t, h, http.MethodPost, "/clear", ""); rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}
	rec = do(t, h, http.MethodGet, "/", "")
	if !strings.Contains(rec.Body.String(), `"extractions_count":0`) {
		t.Errorf("index = %s", rec.Body)
	}
}

func TestHandler_CORS(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/extract", nil)
	req.Header.Set("Origin", "https://mksap.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	s, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
