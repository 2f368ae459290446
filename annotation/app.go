package annotation

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/lewtec/scriptorium/internal/domain"
	"github.com/lewtec/scriptorium/internal/geometry"
	"github.com/lewtec/scriptorium/internal/repository"
)

// maxBody caps annotation request bodies.
const maxBody = 1 << 20

// App is the development annotation backend: the REST endpoints the viewer
// talks to, a IIIF info.json per image and the image bytes themselves.
type App struct {
	ImagesDir string
	Database  *sql.DB
	Config    *Config

	images      *repository.ImageRepository
	annotations *repository.AnnotationRepository
}

func (a *App) init() {
	a.ImagesDir = strings.TrimSuffix(a.ImagesDir, "/")
	a.images = repository.NewImageRepository(a.Database)
	a.annotations = repository.NewAnnotationRepository(a.Database)
}

func stringOr(str, or string) string {
	if str != "" {
		return str
	}
	return or
}

func (a *App) GetHTTPHandler() http.Handler {
	a.init()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /annotations", a.listAnnotations)
	mux.HandleFunc("POST /annotations", a.createAnnotation)
	mux.HandleFunc("PATCH /annotations/{id}", a.updateAnnotation)
	mux.HandleFunc("DELETE /annotations/{id}", a.deleteAnnotation)
	mux.HandleFunc("GET /iiif/{image}/info.json", a.imageInfo)
	mux.HandleFunc("GET /asset/{image}", a.asset)
	mux.HandleFunc("GET /{$}", a.index)

	log.Printf("images dir: %s", a.ImagesDir)

	var handler http.Handler = mux
	handler = requestCacheMiddleware(handler)
	handler = HTTPLogger(handler)
	return handler
}

// lookupImage writes a 404 and returns nil when the image is unknown.
func (a *App) lookupImage(w http.ResponseWriter, r *http.Request, id string) *domain.Image {
	img, err := GetRequestCache(r.Context()).Image(r.Context(), a.images, id)
	if err != nil {
		log.Printf("error: http: while looking up image %s: %s", id, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil
	}
	if img == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("image %s not found", id))
		return nil
	}
	return img
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid annotation id")
		return 0, false
	}
	return id, true
}

func (a *App) listAnnotations(w http.ResponseWriter, r *http.Request) {
	imageID := r.URL.Query().Get("image")
	if imageID == "" {
		writeError(w, http.StatusBadRequest, "missing image parameter")
		return
	}
	filter := domain.RecordFilter{Image: imageID}
	if raw := r.URL.Query().Get("classification"); raw != "" {
		class, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid classification parameter")
			return
		}
		filter.Classification = &class
	}
	if a.lookupImage(w, r, imageID) == nil {
		return
	}

	recs, err := a.annotations.List(r.Context(), filter)
	if err != nil {
		log.Printf("error: http: while listing annotations of %s: %s", imageID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]domain.Record, len(recs))
	for i, rec := range recs {
		out[i] = *rec
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) createAnnotation(w http.ResponseWriter, r *http.Request) {
	var rec domain.Record
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid annotation: %s", err))
		return
	}
	if _, err := geometry.ParseFragment(rec.Geometry); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if rec.Image == "" {
		writeError(w, http.StatusBadRequest, "missing image")
		return
	}
	if a.lookupImage(w, r, rec.Image) == nil {
		return
	}

	created, err := a.annotations.Create(r.Context(), rec)
	if err != nil {
		log.Printf("error: http: while creating annotation: %s", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	log.Printf("http: created annotation %d on %s", created.ID, created.Image)
	writeJSON(w, http.StatusCreated, created)
}

func (a *App) updateAnnotation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var patch domain.RecordPatch
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid patch: %s", err))
		return
	}
	if patch.Geometry != nil {
		if _, err := geometry.ParseFragment(*patch.Geometry); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	updated, err := a.annotations.Update(r.Context(), id, patch)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("annotation %d not found", id))
		return
	}
	if err != nil {
		log.Printf("error: http: while updating annotation %d: %s", id, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *App) deleteAnnotation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	err := a.annotations.Delete(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("annotation %d not found", id))
		return
	}
	if err != nil {
		log.Printf("error: http: while deleting annotation %d: %s", id, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) imageInfo(w http.ResponseWriter, r *http.Request) {
	img := a.lookupImage(w, r, r.PathValue("image"))
	if img == nil {
		return
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"@context": "http://iiif.io/api/image/2/context.json",
		"@id":      fmt.Sprintf("%s://%s/iiif/%s", scheme, r.Host, img.ID),
		"protocol": "http://iiif.io/api/image",
		"width":    img.Width,
		"height":   img.Height,
		"profile":  []string{"http://iiif.io/api/image/2/level0.json"},
	})
}

func (a *App) asset(w http.ResponseWriter, r *http.Request) {
	img := a.lookupImage(w, r, r.PathValue("image"))
	if img == nil {
		return
	}
	log.Printf("http: asset id %s is %s!", img.ID, img.Filename)
	f, err := os.Open(path.Join(a.ImagesDir, img.Filename))
	if errors.Is(err, os.ErrNotExist) {
		http.NotFoundHandler().ServeHTTP(w, r)
		return
	}
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		log.Printf("error: http: while serving image asset: %s", err)
		return
	}
	defer f.Close()
	io.Copy(w, f)
}

func (a *App) index(w http.ResponseWriter, r *http.Request) {
	images, err := GetRequestCache(r.Context()).Images(r.Context(), a.images)
	if err != nil {
		log.Printf("error: http: while listing images: %s", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	var markdownBuilder strings.Builder
	description := ""
	if a.Config != nil {
		description = a.Config.Meta.Description
	}
	fmt.Fprintf(&markdownBuilder, "# Welcome to scriptorium\n")
	fmt.Fprintf(&markdownBuilder, "> %s\n\n", strings.ReplaceAll(stringOr(description, "(No description provided)"), "\n", "\n>"))
	fmt.Fprintf(&markdownBuilder, "## Images\n\n")
	if len(images) == 0 {
		fmt.Fprintf(&markdownBuilder, "No images yet. Hint: use the 'ingest' subcommand.\n")
	}
	for _, img := range images {
		count, err := a.annotations.CountForImage(r.Context(), img.ID)
		if err != nil {
			log.Printf("error: http: while counting annotations of %s: %s", img.ID, err)
		}
		fmt.Fprintf(&markdownBuilder, "- [%s](/asset/%s) %dx%d, %d annotations ([info.json](/iiif/%s/info.json))\n",
			img.Filename, img.ID, img.Width, img.Height, count, img.ID)
	}
	if err := ExecTemplate(w, TemplateContent{Title: "Welcome", Content: markdownBuilder.String()}); err != nil {
		log.Printf("error: http: while rendering index: %s", err)
	}
}
