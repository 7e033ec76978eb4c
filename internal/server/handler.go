package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/floodwatch/internal/dataset"
	"github.com/sells-group/floodwatch/internal/hazard"
	"github.com/sells-group/floodwatch/internal/mapimg"
	"github.com/sells-group/floodwatch/pkg/geojs"
)

//go:embed index.html
var indexHTML []byte

// DatasetLoader provides the cached polygon collection.
type DatasetLoader interface {
	Load(ctx context.Context) (*dataset.Collection, error)
}

// Handler serves the flood hazard endpoints.
type Handler struct {
	datasets DatasetLoader
	geo      geojs.Client
	maps     *MapCache
	mapDir   string
	mapOpts  mapimg.Options
}

// NewHandler creates a Handler.
func NewHandler(datasets DatasetLoader, geo geojs.Client, maps *MapCache, mapDir string, mapOpts mapimg.Options) *Handler {
	return &Handler{
		datasets: datasets,
		geo:      geo,
		maps:     maps,
		mapDir:   mapDir,
		mapOpts:  mapOpts,
	}
}

// checkResponse is the /check_flood_hazard body.
type checkResponse struct {
	Hazard       string `json:"hazard"`
	MapAvailable bool   `json:"map_available"`
	MapID        string `json:"map_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Index serves the static front-end page.
func (h *Handler) Index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CheckFloodHazard geolocates the caller and reports the flood hazard label
// for their position.
//
// Status conventions: domain-level "could not determine" outcomes (the
// geolocation provider cannot place the address) are 200 with an error field
// and hazard "Unknown"; infrastructure failures (dataset unavailable) are
// 500 with an error field.
func (h *Handler) CheckFloodHazard(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	log := zap.L().With(zap.String("ip", ip))

	coll, err := h.datasets.Load(r.Context())
	if err != nil {
		log.Error("hazard check: dataset unavailable", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, checkResponse{
			Hazard: "Unknown",
			Error:  "hazard dataset unavailable",
		})
		return
	}

	loc, err := h.geo.Locate(r.Context(), ip)
	if err != nil || !loc.Matched {
		if err != nil {
			log.Warn("hazard check: geolocation failed", zap.Error(err))
		}
		writeJSON(w, http.StatusOK, checkResponse{
			Hazard: "Unknown",
			Error:  "could not determine a location for your address",
		})
		return
	}

	res := hazard.Resolve(loc.Latitude, loc.Longitude, coll)
	log.Info("hazard check",
		zap.Float64("lat", loc.Latitude),
		zap.Float64("lon", loc.Longitude),
		zap.Bool("matched", res.Matched),
		zap.String("hazard", res.Label),
	)

	resp := checkResponse{Hazard: res.Label}
	if id := h.renderMap(coll, res); id != "" {
		resp.MapAvailable = true
		resp.MapID = id
	}
	writeJSON(w, http.StatusOK, resp)
}

// renderMap renders and registers a locator map for a resolved query.
// Returns "" when rendering is unavailable; map failures never fail the
// hazard check.
func (h *Handler) renderMap(coll *dataset.Collection, res hazard.Result) string {
	if h.maps == nil || h.mapDir == "" {
		return ""
	}

	data, err := mapimg.Render(coll, res.X, res.Y, res.Feature, h.mapOpts)
	if err != nil {
		zap.L().Warn("hazard check: map render failed", zap.Error(err))
		return ""
	}

	if err := os.MkdirAll(h.mapDir, 0o755); err != nil {
		zap.L().Warn("hazard check: create map dir", zap.Error(err))
		return ""
	}

	id := uuid.New().String()
	path := filepath.Join(h.mapDir, id+".png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		zap.L().Warn("hazard check: write map file", zap.String("path", path), zap.Error(err))
		return ""
	}

	h.maps.Put(id, path)
	return id
}

// ServeMap returns a rendered map image. ?id= selects a specific map from a
// previous check; without it the most recent map is served.
func (h *Handler) ServeMap(w http.ResponseWriter, r *http.Request) {
	var path string
	if h.maps != nil {
		if id := r.URL.Query().Get("id"); id != "" {
			path = h.maps.Get(id)
		} else {
			path = h.maps.Latest()
		}
	}

	if path == "" {
		http.Error(w, "Map not found", http.StatusNotFound)
		return
	}
	if _, err := os.Stat(path); err != nil {
		http.Error(w, "Map not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	http.ServeFile(w, r, path)
}

// clientIP extracts the caller's address: the first X-Forwarded-For entry
// when present, else the connection's remote host. Private and loopback
// addresses yield "" so the geolocation provider falls back to the caller it
// observes.
func clientIP(r *http.Request) string {
	ip := ""
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip = strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	} else if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	} else {
		ip = r.RemoteAddr
	}

	if parsed := net.ParseIP(ip); parsed != nil && (parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified()) {
		return ""
	}
	return ip
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Debug("write json response", zap.Error(err))
	}
}
