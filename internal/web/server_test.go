package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/JonMunkholm/ebusdash/internal/config"
	"github.com/JonMunkholm/ebusdash/internal/core"
	"github.com/JonMunkholm/ebusdash/internal/logging"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

// fakeDevice is an adapter stand-in recording what was pushed to it.
type fakeDevice struct {
	*httptest.Server

	mu     sync.Mutex
	pushed []string
}

func newFakeDevice(t *testing.T) *fakeDevice {
	t.Helper()
	d := &fakeDevice{}
	mux := http.NewServeMux()
	mux.HandleFunc("/devices", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"08","name":"<b>BAI</b>"},{"id":"15","zone":1}]`))
	})
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Firmware":{"Version":"1.2"},"Uptime":42}`))
	})
	mux.HandleFunc("/scan", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Scan started"))
	})
	mux.HandleFunc("/logs", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("line one\n"))
	})
	mux.HandleFunc("/commands", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"name":"flow","read":"b509"}]`))
	})
	mux.HandleFunc("/commands/insert", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		d.mu.Lock()
		d.pushed = append(d.pushed, string(body))
		d.mu.Unlock()
		w.Write([]byte("Inserted"))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "", http.StatusInternalServerError)
	})
	d.Server = httptest.NewServer(mux)
	t.Cleanup(d.Close)
	return d
}

func (d *fakeDevice) Pushed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.pushed...)
}

func testConfig(deviceURL string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		Device: config.DeviceConfig{
			URL:           deviceURL,
			MaxConcurrent: 2,
			MaxWait:       time.Second,
		},
		Editor:   config.EditorConfig{MaxUploadSize: 1 << 10},
		Panels:   config.PanelsConfig{MaxDepth: 32},
		Security: config.SecurityConfig{EnableCSP: true},
		Logging:  config.LoggingConfig{DiagnosticsCapacity: 10},
	}
}

func testPanels() *core.PanelRegistry {
	return core.NewPanelRegistry(
		core.Panel{Key: "devices", Group: "Bus", Title: "Devices", Kind: core.PanelTable, Endpoint: "/devices"},
		core.Panel{Key: "broken", Group: "Bus", Title: "Broken", Kind: core.PanelTable, Endpoint: "/broken"},
		core.Panel{Key: "status", Group: "Adapter", Title: "Status", Kind: core.PanelSections, Endpoint: "/status"},
		core.Panel{Key: "scan", Group: "Bus", Title: "Scan", Kind: core.PanelAction, Endpoint: "/scan", Message: "Scanning..."},
		core.Panel{Key: "logs", Group: "Adapter", Title: "Logs", Kind: core.PanelDownload, Endpoint: "/logs", Filename: "logs.txt"},
		core.Panel{
			Key: "commands", Group: "Commands", Title: "Commands", Kind: core.PanelEditor,
			Endpoint: "/commands", PushEndpoint: "/commands/insert",
		},
	)
}

type testEnv struct {
	server *Server
	device *fakeDevice
	diag   *logging.Diagnostics
	cookie *http.Cookie
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	dev := newFakeDevice(t)
	cfg := testConfig(dev.URL)
	if mutate != nil {
		mutate(cfg)
	}

	fetcher, err := core.NewFetcher(core.FetcherConfig{
		BaseURL:       cfg.Device.URL,
		MaxConcurrent: cfg.Device.MaxConcurrent,
		MaxWait:       cfg.Device.MaxWait,
	}, dev.Client())
	require.NoError(t, err)

	diag := logging.NewDiagnostics(cfg.Logging.DiagnosticsCapacity)
	s := NewServer(Deps{Config: cfg, Fetcher: fetcher, Panels: testPanels(), Diagnostics: diag})
	t.Cleanup(func() { s.Shutdown(context.Background()) })

	return &testEnv{server: s, device: dev, diag: diag}
}

// do sends a request through the router, reusing the session cookie from
// earlier responses.
func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if e.cookie != nil {
		req.AddCookie(e.cookie)
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			e.cookie = c
		}
	}
	return rec
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	return e.do(t, httptest.NewRequest(http.MethodGet, path, nil))
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(t, req)
}

// byID parses an HTML fragment and returns the element with the given id.
func byID(t *testing.T, body, id string) *html.Node {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(body))
	require.NoError(t, err)

	var found *html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode {
			for _, a := range n.Attr {
				if a.Key == "id" && a.Val == id {
					found = n
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	require.NotNil(t, found, "no element with id %q in %s", id, body)
	return found
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func countElements(n *html.Node, tag string) int {
	count := 0
	if n.Type == html.ElementNode && n.Data == tag {
		count++
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		count += countElements(c, tag)
	}
	return count
}

func TestTablePanel(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get(t, "/ui/table/devices")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	thead := byID(t, body, "devices-thead")
	assert.Equal(t, "idnamezone", textOf(thead))

	tbody := byID(t, body, "devices-tbody")
	assert.Equal(t, 2, countElements(tbody, "tr"))
	assert.Contains(t, textOf(tbody), "<b>BAI</b>", "cell text is shown literally")
	assert.NotContains(t, body, "<b>BAI</b>", "cell markup is escaped")

	assert.Equal(t, core.StatusFetched, textOf(byID(t, body, "status")))
}

func TestTablePanel_DeviceFailure(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get(t, "/ui/table/broken")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.StatusFetchError, textOf(byID(t, rec.Body.String(), "status")))
	assert.NotContains(t, rec.Body.String(), "broken-thead")
}

func TestPanel_UnknownOrWrongKind(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		path string
	}{
		{"unknown panel", "/ui/table/nope"},
		{"wrong kind", "/ui/table/status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("Accept", "application/json")
			rec := env.do(t, req)

			assert.Equal(t, http.StatusNotFound, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.NotEmpty(t, resp.Code)
		})
	}

	t.Run("htmx gets an alert fragment", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ui/table/nope", nil)
		req.Header.Set("HX-Request", "true")
		rec := env.do(t, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), `role="alert"`)
	})
}

func TestSectionsPanel(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get(t, "/ui/sections/status")

	require.Equal(t, http.StatusOK, rec.Code)
	container := byID(t, rec.Body.String(), "status-sections")
	assert.Equal(t, 1, countElements(container, "details"))
	assert.Equal(t, "FirmwareVersion: 1.2Uptime: 42", textOf(container))
	assert.Equal(t, core.StatusFetched, textOf(byID(t, rec.Body.String(), "status")))
}

func TestActionPanel(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, httptest.NewRequest(http.MethodPost, "/ui/action/scan", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Scan started", textOf(byID(t, rec.Body.String(), "status")))
}

func TestDownloadPanel(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get(t, "/ui/download/logs")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "line one\n", rec.Body.String())
	assert.Regexp(t, `attachment; filename="?\d{4}-\d{2}-\d{2}-\d{2}-\d{2}-\d{2}-logs\.txt"?`, rec.Header().Get("Content-Disposition"))
}

func TestEditor_ClearAndFormat(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.postForm(t, "/ui/editor/format", url.Values{"text": {`{"a":1,"b":[2,3]}`}})
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	want := "{\n  \"a\": 1,\n  \"b\": [\n    2,\n    3\n  ]\n}"
	assert.Equal(t, want, textOf(byID(t, body, "editor")))
	assert.Equal(t, "39 bytes", textOf(byID(t, body, "editor-size")))
	assert.Equal(t, core.StatusFormatted, textOf(byID(t, body, "status")))

	rec = env.postForm(t, "/ui/editor/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = rec.Body.String()
	assert.Empty(t, textOf(byID(t, body, "editor")))
	assert.Equal(t, "0 bytes", textOf(byID(t, body, "editor-size")))
	assert.Equal(t, core.StatusEditorCleared, textOf(byID(t, body, "status")))
}

func TestEditor_FormatInvalidKeepsText(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.postForm(t, "/ui/editor/format", url.Values{"text": {`{"a":`}})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.StatusInvalidJSON, textOf(byID(t, rec.Body.String(), "status")))
	assert.NotContains(t, rec.Body.String(), `id="editor"`, "textarea is left alone")

	rec = env.get(t, "/ui/editor/download")
	assert.Equal(t, `{"a":`, rec.Body.String())
}

func multipartUpload(t *testing.T, field, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("other", "x"))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestEditor_Upload(t *testing.T) {
	tests := []struct {
		name       string
		field      string
		content    string
		wantCode   int
		wantStatus string
		wantText   string
	}{
		{
			name:       "valid file",
			field:      "file",
			content:    `{"x":true}`,
			wantCode:   http.StatusOK,
			wantStatus: core.StatusLoadedFile,
			wantText:   "{\n  \"x\": true\n}",
		},
		{
			name:       "invalid file",
			field:      "file",
			content:    `nope`,
			wantCode:   http.StatusOK,
			wantStatus: core.StatusInvalidJSONFile,
		},
		{
			name:     "no file selected",
			wantCode: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			body, ctype := multipartUpload(t, tt.field, "commands.json", tt.content)
			req := httptest.NewRequest(http.MethodPost, "/ui/editor/upload", body)
			req.Header.Set("Content-Type", ctype)

			rec := env.do(t, req)

			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantStatus != "" {
				assert.Equal(t, tt.wantStatus, textOf(byID(t, rec.Body.String(), "status")))
			}
			if tt.wantText != "" {
				assert.Equal(t, tt.wantText, textOf(byID(t, rec.Body.String(), "editor")))
			}
		})
	}
}

func TestEditor_LoadAndPush(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get(t, "/ui/editor/load/commands")
	require.Equal(t, http.StatusOK, rec.Code)
	loaded := textOf(byID(t, rec.Body.String(), "editor"))
	assert.Contains(t, loaded, `"name": "flow"`)

	rec = env.postForm(t, "/ui/editor/push/commands", url.Values{"text": {`[{"name":"x"}]`}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Inserted", textOf(byID(t, rec.Body.String(), "status")))
	assert.Equal(t, []string{`[{"name":"x"}]`}, env.device.Pushed())

	rec = env.postForm(t, "/ui/editor/push/commands", url.Values{"text": {`[{`}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, core.StatusInvalidJSON, textOf(byID(t, rec.Body.String(), "status")))
	assert.Len(t, env.device.Pushed(), 1, "invalid JSON is not sent")
}

func TestEditor_Download(t *testing.T) {
	env := newTestEnv(t, nil)
	env.postForm(t, "/ui/editor/text", url.Values{"text": {`{"k":"v"}`}})

	rec := env.get(t, "/ui/editor/download?panel=commands")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"k":"v"}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Regexp(t, regexp.MustCompile(`\d{4}-\d{2}-\d{2}-\d{2}-\d{2}-\d{2}-commands\.json`), rec.Header().Get("Content-Disposition"))
}

func TestSession_IsolatedPerCookie(t *testing.T) {
	env := newTestEnv(t, nil)
	env.postForm(t, "/ui/editor/text", url.Values{"text": {"mine"}})
	require.NotNil(t, env.cookie)

	assert.Equal(t, "mine", env.get(t, "/ui/editor/download").Body.String())

	other := &testEnv{server: env.server}
	assert.Empty(t, other.get(t, "/ui/editor/download").Body.String())
	require.NotNil(t, other.cookie)
	assert.NotEqual(t, env.cookie.Value, other.cookie.Value)
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get(t, "/")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	byID(t, body, "devices-thead")
	byID(t, body, "status-sections")
	byID(t, body, "editor")
	byID(t, body, "status")
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestAPI_StatusAndHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, httptest.NewRequest(http.MethodPost, "/ui/action/scan", nil))

	rec := env.get(t, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Message string                   `json:"message"`
		Device  core.RequestLimiterStatus `json:"device"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, "Scan started", status.Message)
	assert.Equal(t, 2, status.Device.MaxConcurrent)

	rec = env.get(t, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.EqualValues(t, 1, health["sessions"])
}

func TestAPI_StatusWithoutSession(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get(t, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies())

	var health map[string]any
	require.NoError(t, json.NewDecoder(env.get(t, "/health").Body).Decode(&health))
	assert.EqualValues(t, 0, health["sessions"])
}

func TestAPI_Panels(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get(t, "/api/panels")

	require.Equal(t, http.StatusOK, rec.Code)
	var panels []core.Panel
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&panels))
	assert.Len(t, panels, 6)
}

func TestAPI_Diagnostics(t *testing.T) {
	env := newTestEnv(t, nil)
	env.diag.Add(logging.Entry{Level: "ERROR", Message: "fetch failed"})
	env.diag.Add(logging.Entry{Level: "INFO", Message: "request"})

	rec := env.get(t, "/api/diagnostics?level=error")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Entries  []logging.Entry `json:"entries"`
		Capacity int             `json:"capacity"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Entries, 1)
	assert.Equal(t, "fetch failed", resp.Entries[0].Message)
	assert.Equal(t, 10, resp.Capacity)
}

func TestAPI_DevicePingWithoutChecker(t *testing.T) {
	env := newTestEnv(t, nil)

	assert.Equal(t, http.StatusServiceUnavailable, env.get(t, "/api/device/ping").Code)
	assert.Equal(t, http.StatusNoContent, env.get(t, "/ui/device/ping").Code)
}

func TestAPI_KeyRequired(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Security.RequireAPIKey = true
		c.Security.APIKeys = []string{"secret"}
	})

	assert.Equal(t, http.StatusUnauthorized, env.get(t, "/api/status").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("X-API-Key", "secret")
	assert.Equal(t, http.StatusOK, env.do(t, req).Code)

	assert.Equal(t, http.StatusOK, env.get(t, "/health").Code, "health stays open")
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, ActionLimit: 1}
	})

	assert.Equal(t, http.StatusOK, env.get(t, "/health").Code)
	assert.Equal(t, http.StatusOK, env.get(t, "/health").Code)

	rec := env.get(t, "/health")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "RATE001", resp.Code)
}

func TestStatusStream(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.server.Router())
	t.Cleanup(srv.Close)

	// Establish a session first so the stream and the action share it.
	resp, err := srv.Client().Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	header := http.Header{}
	header.Set("Cookie", cookie.String())
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/status"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	var msg statusMessage
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Empty(t, msg.Message, "new session starts blank")

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/ui/action/scan", nil)
	require.NoError(t, err)
	req.AddCookie(cookie)
	resp, err = srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	// Intermediate updates may be coalesced; the final one must arrive.
	for msg.Message != "Scan started" {
		require.NoError(t, conn.ReadJSON(&msg))
	}
}
