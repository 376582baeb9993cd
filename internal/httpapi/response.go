package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dustin/go-humanize"

	"github.com/freeeve/chunkgrid/internal/catalog"
	"github.com/freeeve/chunkgrid/internal/raster"
)

// GridResponse describes a saved grid.
type GridResponse struct {
	Name       string            `json:"name"`
	Kind       string            `json:"kind"`
	NoData     string            `json:"nodata"`
	Dims       raster.Dimensions `json:"dims"`
	Chunks     int64             `json:"chunks"`
	Stored     int               `json:"stored_chunks"`
	Policy     string            `json:"policy,omitempty"`
	StatsSaved bool              `json:"stats_saved"`
}

func toGridResponse(m raster.Meta) GridResponse {
	return GridResponse{
		Name:       m.Name,
		Kind:       m.Kind,
		NoData:     m.NoData,
		Dims:       m.Dims,
		Chunks:     m.Dims.ChunkCount(),
		Stored:     len(m.Chunks),
		Policy:     m.Policy,
		StatsSaved: m.Stats != nil,
	}
}

// CellResponse is one cell value.
type CellResponse struct {
	Row   int64  `json:"row"`
	Col   int64  `json:"col"`
	Value string `json:"value"`
}

// GuardianResponse is the guardian's accounting.
type GuardianResponse struct {
	Budget    string `json:"budget"`
	Reserve   string `json:"reserve"`
	Resident  string `json:"resident"`
	Chunks    int    `json:"resident_chunks"`
	Grids     int    `json:"grids"`
	Evictions uint64 `json:"evictions"`
	Persists  uint64 `json:"persists"`
	Loads     uint64 `json:"loads"`
	Exhausted uint64 `json:"exhausted"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, raster.ErrGridNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrNotNumeric), errors.Is(err, raster.ErrNoData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, raster.ErrOutOfMemory):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:     err.Error(),
		RequestID: RequestIDFrom(r.Context()),
	})
}

func guardianResponse(s raster.GuardianStats) GuardianResponse {
	return GuardianResponse{
		Budget:    humanize.IBytes(uint64(s.Budget)),
		Reserve:   humanize.IBytes(uint64(s.Reserve)),
		Resident:  humanize.IBytes(uint64(s.Resident)),
		Chunks:    s.Chunks,
		Grids:     s.Grids,
		Evictions: s.Evictions,
		Persists:  s.Persists,
		Loads:     s.Loads,
		Exhausted: s.Exhausted,
	}
}
