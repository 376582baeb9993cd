package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/freeeve/chunkgrid/internal/catalog"
	"github.com/freeeve/chunkgrid/internal/raster"
	"github.com/freeeve/chunkgrid/internal/render"
)

// Handler serves grids from a catalog. The guardian and grids are not safe
// for concurrent use, so every grid request holds mu.
type Handler struct {
	mu        sync.Locker
	cat       *catalog.Catalog
	guardian  *raster.Guardian
	maxPixels int64
	log       zerolog.Logger
}

// Config configures NewRouter.
type Config struct {
	Catalog  *catalog.Catalog
	Guardian *raster.Guardian
	// Gatherer serves /metrics when set.
	Gatherer  prometheus.Gatherer
	MaxPixels int64 // image size limit, default 1<<24
	// Lock serializes catalog access; share it with an ingest worker.
	// Default is a private mutex.
	Lock   sync.Locker
	Logger zerolog.Logger
}

// NewRouter returns the read-only grid API:
//
//	GET /v1/grids
//	GET /v1/grids/{name}
//	GET /v1/grids/{name}/cell?row=R&col=C
//	GET /v1/grids/{name}/stats
//	GET /v1/grids/{name}/classes?n=N
//	GET /v1/grids/{name}/image.png?classes=N
//	GET /v1/guardian
func NewRouter(cfg Config) http.Handler {
	if cfg.MaxPixels == 0 {
		cfg.MaxPixels = 1 << 24
	}
	if cfg.Lock == nil {
		cfg.Lock = &sync.Mutex{}
	}
	h := &Handler{
		mu:        cfg.Lock,
		cat:       cfg.Catalog,
		guardian:  cfg.Guardian,
		maxPixels: cfg.MaxPixels,
		log:       cfg.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.health)
	mux.HandleFunc("GET /v1/grids", h.grids)
	mux.HandleFunc("GET /v1/grids/{name}", h.grid)
	mux.HandleFunc("GET /v1/grids/{name}/cell", h.cell)
	mux.HandleFunc("GET /v1/grids/{name}/stats", h.stats)
	mux.HandleFunc("GET /v1/grids/{name}/classes", h.classes)
	mux.HandleFunc("GET /v1/grids/{name}/image.png", h.image)
	mux.HandleFunc("GET /v1/guardian", h.guardianStats)
	if cfg.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	// pprof endpoints
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return CORS(RequestID(AccessLog(cfg.Logger, mux)))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) grids(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	names, err := h.cat.Names()
	if err != nil {
		writeError(w, r, statusOf(err), err)
		return
	}
	out := make([]GridResponse, 0, len(names))
	for _, name := range names {
		m, err := h.cat.Meta(name)
		if err != nil {
			h.log.Warn().Err(err).Str("grid", name).Msg("skipping unreadable grid")
			continue
		}
		out = append(out, toGridResponse(m))
	}
	writeJSON(w, out)
}

func (h *Handler) grid(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	m, err := h.cat.Meta(r.PathValue("name"))
	if err != nil {
		writeError(w, r, statusOf(err), err)
		return
	}
	writeJSON(w, toGridResponse(m))
}

// acquire must be called with mu held.
func (h *Handler) acquire(w http.ResponseWriter, r *http.Request) (catalog.Grid, bool) {
	g, err := h.cat.Acquire(r.PathValue("name"))
	if err != nil {
		writeError(w, r, statusOf(err), err)
		return nil, false
	}
	return g, true
}

func queryInt(r *http.Request, key string, def int64) (int64, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("query %s=%q: not an integer", key, s)
	}
	return n, nil
}

func (h *Handler) cell(w http.ResponseWriter, r *http.Request) {
	row, err := queryInt(r, "row", -1)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	col, err := queryInt(r, "col", -1)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.acquire(w, r)
	if !ok {
		return
	}
	if !g.Dims().Contains(row, col) {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("cell (%d,%d) is outside the grid", row, col))
		return
	}
	v, err := g.Get(row, col)
	if err != nil {
		writeError(w, r, statusOf(err), err)
		return
	}
	writeJSON(w, CellResponse{Row: row, Col: col, Value: v})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.acquire(w, r)
	if !ok {
		return
	}
	s, err := g.Summary()
	if err != nil {
		writeError(w, r, statusOf(err), err)
		return
	}
	writeJSON(w, s)
}

func (h *Handler) classes(w http.ResponseWriter, r *http.Request) {
	n, err := queryInt(r, "n", 5)
	if err != nil || n < 1 || n > 256 {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("n must be between 1 and 256"))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.acquire(w, r)
	if !ok {
		return
	}
	classes, err := g.Classes(int(n))
	if err != nil {
		writeError(w, r, statusOf(err), err)
		return
	}
	writeJSON(w, classes)
}

func (h *Handler) image(w http.ResponseWriter, r *http.Request) {
	n, err := queryInt(r, "classes", 0)
	if err != nil || n < 0 || n > 256 {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("classes must be between 0 and 256"))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.acquire(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	err = g.Render(&buf, render.Options{Classes: int(n), MaxPixels: h.maxPixels})
	switch {
	case errors.Is(err, render.ErrTooLarge):
		writeError(w, r, http.StatusRequestEntityTooLarge, err)
		return
	case err != nil:
		writeError(w, r, statusOf(err), err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = buf.WriteTo(w)
}

func (h *Handler) guardianStats(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	writeJSON(w, guardianResponse(h.guardian.Stats()))
}
