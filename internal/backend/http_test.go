package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewtec/scriptorium/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewHTTPClient(Options{BaseURL: srv.URL + "/", Timeout: time.Second})
	require.NoError(t, err)
	return c
}

func TestNewHTTPClient_RejectsBadURL(t *testing.T) {
	_, err := NewHTTPClient(Options{BaseURL: "ftp://example.org"})
	assert.Error(t, err)
}

func TestHTTPClient_List(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/annotations", r.URL.Path)
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode([]domain.Record{{ID: 1, Image: "f", Geometry: "xywh=pixel:1,2,3,4"}})
	})

	class := int64(7)
	recs, err := c.List(context.Background(), "f", &class)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, int64(1), recs[0].ID)
	assert.Equal(t, "classification=7&image=f", gotQuery)
}

func TestHTTPClient_ListNullBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("null"))
	})
	recs, err := c.List(context.Background(), "f", nil)
	require.NoError(t, err)
	assert.NotNil(t, recs)
	assert.Empty(t, recs)
}

func TestHTTPClient_CreateUpdateDelete(t *testing.T) {
	var seen []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		switch r.Method {
		case http.MethodPost:
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			var rec domain.Record
			require.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
			rec.ID = 42
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(rec)
		case http.MethodPatch:
			var patch domain.RecordPatch
			require.NoError(t, json.NewDecoder(r.Body).Decode(&patch))
			json.NewEncoder(w).Encode(domain.Record{ID: 42, Geometry: *patch.Geometry})
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	ctx := context.Background()

	created, err := c.Create(ctx, domain.Record{Image: "f", Geometry: "xywh=pixel:0,0,1,1"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), created.ID)

	g := "xywh=pixel:5,5,5,5"
	updated, err := c.Update(ctx, 42, domain.RecordPatch{Geometry: &g})
	require.NoError(t, err)
	assert.Equal(t, g, updated.Geometry)

	require.NoError(t, c.Delete(ctx, 42))

	assert.Equal(t, []string{"POST /annotations", "PATCH /annotations/42", "DELETE /annotations/42"}, seen)
}

func TestHTTPClient_StatusErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/annotations/404":
			http.Error(w, "no such annotation", http.StatusNotFound)
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	})
	ctx := context.Background()

	err := c.Delete(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.True(t, IsStatus(err, 404))

	_, err = c.Create(ctx, domain.Record{})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 500, se.Code)
	assert.Equal(t, "boom", se.Body)
	assert.False(t, errors.Is(err, domain.ErrNotFound))
}

func TestHTTPClient_FetchImageInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/iiif/ok/info.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"@context":"http://iiif.io/api/image/2/context.json","width":2000,"height":3000}`))
	})
	mux.HandleFunc("/iiif/zero/info.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"width":10}`))
	})
	mux.HandleFunc("/iiif/slow/info.json", func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c, err := NewHTTPClient(Options{BaseURL: srv.URL})
	require.NoError(t, err)

	info, err := c.FetchImageInfo(context.Background(), srv.URL+"/iiif/ok/info.json")
	require.NoError(t, err)
	assert.Equal(t, ImageInfo{Width: 2000, Height: 3000}, info)

	_, err = c.FetchImageInfo(context.Background(), srv.URL+"/iiif/zero/info.json")
	assert.Error(t, err)

	_, err = c.FetchImageInfo(context.Background(), srv.URL+"/iiif/missing/info.json")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.FetchImageInfo(ctx, srv.URL+"/iiif/slow/info.json")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPClient_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	}))
	t.Cleanup(srv.Close)
	c, err := NewHTTPClient(Options{BaseURL: srv.URL, RequestsPerSecond: 0.001, Burst: 1})
	require.NoError(t, err)

	_, err = c.List(context.Background(), "f", nil)
	require.NoError(t, err, "first request uses the burst")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.List(ctx, "f", nil)
	assert.Error(t, err, "second request must wait far longer than the deadline")
}
