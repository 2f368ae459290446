package annotation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lewtec/scriptorium/internal/backend"
	"github.com/lewtec/scriptorium/internal/cache"
	"github.com/lewtec/scriptorium/internal/domain"
	"github.com/lewtec/scriptorium/internal/geometry"
	"github.com/lewtec/scriptorium/internal/overlay"
	"github.com/lewtec/scriptorium/internal/tools"
	"github.com/lewtec/scriptorium/internal/viewer"
)

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("failed to create image: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	id, err := HashFile(f.Name())
	if err != nil {
		t.Fatalf("failed to hash image: %v", err)
	}
	return id
}

// newApp creates a dev backend over one 40x60 image and returns its id.
func newApp(t *testing.T) (*App, string) {
	t.Helper()
	dir := t.TempDir()
	id := writePNG(t, dir, "folio-1r.png", 40, 60)

	db, err := GetDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	config := DefaultConfig()
	config.Classifications = []string{"initial", "rubric"}
	if err := PrepareDatabase(context.Background(), db, config, dir); err != nil {
		t.Fatalf("PrepareDatabase failed: %v", err)
	}

	return &App{ImagesDir: dir + "/", Database: db, Config: config}, id
}

// setupApp serves newApp over http.
func setupApp(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	app, id := newApp(t)
	srv := httptest.NewServer(app.GetHTTPHandler())
	t.Cleanup(srv.Close)
	return srv, id
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestPrepareDatabase(t *testing.T) {
	t.Run("rejects nested folders", func(t *testing.T) {
		dir := t.TempDir()
		os.Mkdir(filepath.Join(dir, "nested"), 0o755)
		db, err := GetDatabase(":memory:")
		if err != nil {
			t.Fatal(err)
		}
		defer db.Close()
		if err := PrepareDatabase(context.Background(), db, nil, dir); err == nil {
			t.Error("expected an error for a nested folder")
		}
	})

	t.Run("rejects files that are not images", func(t *testing.T) {
		dir := t.TempDir()
		os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644)
		db, err := GetDatabase(":memory:")
		if err != nil {
			t.Fatal(err)
		}
		defer db.Close()
		if err := PrepareDatabase(context.Background(), db, nil, dir); err == nil {
			t.Error("expected an error for a non-image file")
		}
	})
}

func TestApp_ImageEndpoints(t *testing.T) {
	srv, id := setupApp(t)

	resp := do(t, http.MethodGet, srv.URL+"/iiif/"+id+"/info.json", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("info.json: expected 200, got %d", resp.StatusCode)
	}
	var info backend.ImageInfo
	json.NewDecoder(resp.Body).Decode(&info)
	if info.Width != 40 || info.Height != 60 {
		t.Errorf("expected 40x60, got %dx%d", info.Width, info.Height)
	}

	if resp := do(t, http.MethodGet, srv.URL+"/iiif/nope/info.json", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown image: expected 404, got %d", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, srv.URL+"/asset/"+id, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("asset: expected 200, got %d", resp.StatusCode)
	}
	if _, err := png.Decode(resp.Body); err != nil {
		t.Errorf("asset is not a png: %v", err)
	}

	resp = do(t, http.MethodGet, srv.URL+"/", "")
	var page strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		page.Write(buf[:n])
		if err != nil {
			break
		}
	}
	if !strings.Contains(page.String(), "folio-1r.png") || !strings.Contains(page.String(), "<h1>") {
		t.Errorf("index does not list the image as html: %s", page.String())
	}
}

// brokenWriter fails every write, like a client that went away.
type brokenWriter struct{ header http.Header }

func (b *brokenWriter) Header() http.Header { return b.header }

func (b *brokenWriter) Write([]byte) (int, error) { return 0, errors.New("connection reset") }

func (b *brokenWriter) WriteHeader(statusCode int) {}

func TestApp_IndexLogsRenderFailures(t *testing.T) {
	app, _ := newApp(t)
	handler := app.GetHTTPHandler()

	var logs bytes.Buffer
	log.SetOutput(&logs)
	defer log.SetOutput(os.Stderr)

	handler.ServeHTTP(&brokenWriter{header: http.Header{}}, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(logs.String(), "error: http: while rendering index: connection reset") {
		t.Errorf("expected the render error to be logged, got: %s", logs.String())
	}
}

func TestApp_AnnotationValidation(t *testing.T) {
	srv, id := setupApp(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"list without image", http.MethodGet, "/annotations", "", http.StatusBadRequest},
		{"list of unknown image", http.MethodGet, "/annotations?image=nope", "", http.StatusNotFound},
		{"list with bad classification", http.MethodGet, "/annotations?image=" + id + "&classification=x", "", http.StatusBadRequest},
		{"create with bad json", http.MethodPost, "/annotations", "{", http.StatusBadRequest},
		{"create with bad geometry", http.MethodPost, "/annotations", `{"image":"` + id + `","geometry":"circle"}`, http.StatusBadRequest},
		{"create with out of range geometry", http.MethodPost, "/annotations", `{"image":"` + id + `","geometry":"xywh=pixel:1e19,0,10,10"}`, http.StatusBadRequest},
		{"create on unknown image", http.MethodPost, "/annotations", `{"image":"nope","geometry":"xywh=pixel:1,1,1,1"}`, http.StatusNotFound},
		{"update unknown annotation", http.MethodPatch, "/annotations/99", `{"body":"x"}`, http.StatusNotFound},
		{"update with bad id", http.MethodPatch, "/annotations/abc", `{}`, http.StatusBadRequest},
		{"update with bad geometry", http.MethodPatch, "/annotations/1", `{"geometry":"xywh=-1,0,1,1"}`, http.StatusBadRequest},
		{"delete unknown annotation", http.MethodDelete, "/annotations/99", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, tt.method, srv.URL+tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
}

func TestApp_AnnotationCRUD(t *testing.T) {
	srv, id := setupApp(t)
	client, err := backend.NewHTTPClient(backend.Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	class := int64(1)
	created, err := client.Create(ctx, domain.Record{Image: id, Geometry: "xywh=pixel:1,2,3,4", Body: "R", Classification: &class})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.ID <= 0 || created.ClassificationLabel != "initial" {
		t.Errorf("unexpected created record: %+v", created)
	}

	g := "xywh=pixel:5,5,5,5"
	updated, err := client.Update(ctx, created.ID, domain.RecordPatch{Geometry: &g})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Geometry != g || updated.Body != "R" {
		t.Errorf("unexpected updated record: %+v", updated)
	}

	recs, err := client.List(ctx, id, &class)
	if err != nil || len(recs) != 1 {
		t.Fatalf("List: expected 1 record, got %d (%v)", len(recs), err)
	}
	other := int64(2)
	if recs, _ := client.List(ctx, id, &other); len(recs) != 0 {
		t.Errorf("classification filter returned %d records", len(recs))
	}

	if err := client.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := client.Delete(ctx, created.ID); !backend.IsStatus(err, http.StatusNotFound) {
		t.Errorf("second delete: expected 404, got %v", err)
	}
}

// TestApp_ViewerRoundTrip drives a viewer against the dev backend.
func TestApp_ViewerRoundTrip(t *testing.T) {
	srv, id := setupApp(t)
	client, err := backend.NewHTTPClient(backend.Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	store := cache.NewStore(cache.NewMemoryKV())
	layer := overlay.NewLayer()
	v := viewer.New(viewer.Options{ImageID: id, InfoURL: srv.URL + "/iiif/" + id + "/info.json"}, layer, client, client, store)
	defer v.Close()

	if err := v.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	layer.Attach()
	if v.Height() != 60 {
		t.Fatalf("expected the height from info.json, got %d", v.Height())
	}

	if err := v.SetMode(tools.Draw); err != nil {
		t.Fatal(err)
	}
	for _, r := range []geometry.Rect{{X: 1, Y: 1, Width: 10, Height: 10}, {X: 20, Y: 30, Width: 5, Height: 25}} {
		if _, err := layer.Draw(geometry.ToOverlay(r, v.Height()), ""); err != nil {
			t.Fatal(err)
		}
	}
	if err := v.Save(context.Background()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if v.Unsaved() != 0 {
		t.Errorf("expected no unsaved changes, got %d", v.Unsaved())
	}

	recs, err := client.List(context.Background(), id, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[1].Geometry != "xywh=pixel:20,30,5,25" {
		t.Errorf("unexpected records on the server: %+v", recs)
	}
}
