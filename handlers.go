package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/kwv/fllplanner/planner"
)

// maxTelemetryBody bounds uploaded telemetry text
const maxTelemetryBody = 1 << 20

// inputValue accepts a JSON number or string; strings are parsed by the session
type inputValue string

func (v *inputValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = inputValue(s)
		return nil
	}
	*v = inputValue(data)
	return nil
}

func (v inputValue) orZero() string {
	if strings.TrimSpace(string(v)) == "" {
		return "0"
	}
	return string(v)
}

type startRequest struct {
	X     inputValue `json:"x"`
	Y     inputValue `json:"y"`
	Angle inputValue `json:"angle"`
}

type profileRequest struct {
	Length  inputValue `json:"length"`
	Width   inputValue `json:"width"`
	OffsetX inputValue `json:"offsetX"`
	OffsetY inputValue `json:"offsetY"`
}

// clickRequest is a click in field pixels, or in screen pixels (Y down)
// when Space is "screen".
type clickRequest struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Space string  `json:"space,omitempty"`
}

// mutationResponse answers every state-changing request. Ignored input is
// reported with Applied false, never as an HTTP error.
type mutationResponse struct {
	Applied   bool                  `json:"applied"`
	Skipped   []planner.SkippedLine `json:"skipped"`
	SessionID string                `json:"sessionId"`
	State     planner.Snapshot      `json:"state"`
}

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(session *planner.Session, config *planner.Config) http.Handler {
	if config == nil {
		config = planner.DefaultConfig()
	}
	planRenderer := planner.NewPlanRenderer(config)
	rasterRenderer, err := planner.NewRasterRenderer(config)
	if err != nil {
		log.Printf("[HTTP] Warning: %v, /field.png renders without field image", err)
	}
	_, fieldHeight := config.FieldSize()

	mux := http.NewServeMux()

	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(v); err != nil {
			log.Printf("[HTTP] Error encoding response: %v", err)
		}
	}
	respond := func(w http.ResponseWriter, applied bool, skipped []planner.SkippedLine) {
		if skipped == nil {
			skipped = []planner.SkippedLine{}
		}
		id, snap := session.Current()
		writeJSON(w, mutationResponse{
			Applied:   applied,
			Skipped:   skipped,
			SessionID: id,
			State:     snap,
		})
	}
	decode := func(w http.ResponseWriter, r *http.Request, v any) bool {
		if err := json.NewDecoder(r.Body).Decode(v); err != nil {
			http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return false
		}
		return true
	}
	readText := func(w http.ResponseWriter, r *http.Request) (string, bool) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTelemetryBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, fmt.Sprintf("telemetry exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
				return "", false
			}
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return "", false
		}
		return string(body), true
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] /health request from %s", r.RemoteAddr)
		id, snap := session.Current()
		writeJSON(w, struct {
			Status    string    `json:"status"`
			Timestamp time.Time `json:"timestamp"`
			SessionID string    `json:"sessionId"`
			HasPose   bool      `json:"hasPose"`
			Steps     int       `json:"steps"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			SessionID: id,
			HasPose:   snap.HasPose,
			Steps:     snap.StepCount,
		})
	})

	mux.HandleFunc("GET /api/state", func(w http.ResponseWriter, r *http.Request) {
		respond(w, true, nil)
	})

	mux.HandleFunc("GET /api/telemetry", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := io.WriteString(w, session.Snapshot().Telemetry); err != nil {
			log.Printf("[HTTP] Error writing telemetry: %v", err)
		}
	})

	mux.HandleFunc("POST /api/start", func(w http.ResponseWriter, r *http.Request) {
		var req startRequest
		if !decode(w, r, &req) {
			return
		}
		respond(w, session.SetStartPoseInput(string(req.X), string(req.Y), string(req.Angle)), nil)
	})

	mux.HandleFunc("POST /api/profile", func(w http.ResponseWriter, r *http.Request) {
		var req profileRequest
		if !decode(w, r, &req) {
			return
		}
		respond(w, session.UpdateProfileInput(string(req.Length), string(req.Width), req.OffsetX.orZero(), req.OffsetY.orZero()), nil)
	})

	mux.HandleFunc("POST /api/click", func(w http.ResponseWriter, r *http.Request) {
		var req clickRequest
		if !decode(w, r, &req) {
			return
		}
		p := planner.Point{X: req.X, Y: req.Y}
		switch req.Space {
		case "", "field":
		case "screen":
			p = planner.TransformPoint(p, planner.ScreenToField(fieldHeight))
		default:
			http.Error(w, fmt.Sprintf("unknown coordinate space %q", req.Space), http.StatusBadRequest)
			return
		}
		respond(w, session.Click(p.X, p.Y), nil)
	})

	mux.HandleFunc("POST /api/turn", func(w http.ResponseWriter, r *http.Request) {
		respond(w, session.BeginTurn(), nil)
	})

	mux.HandleFunc("POST /api/marker", func(w http.ResponseWriter, r *http.Request) {
		respond(w, session.AddMarker(), nil)
	})

	mux.HandleFunc("POST /api/undo", func(w http.ResponseWriter, r *http.Request) {
		respond(w, session.Undo(), nil)
	})

	mux.HandleFunc("POST /api/reset", func(w http.ResponseWriter, r *http.Request) {
		respond(w, session.Reset(), nil)
	})

	mux.HandleFunc("POST /api/telemetry", func(w http.ResponseWriter, r *http.Request) {
		text, ok := readText(w, r)
		if !ok {
			return
		}
		applied, skipped := session.LoadTelemetry(text)
		log.Printf("[HTTP] telemetry loaded: applied=%v skipped=%d", applied, len(skipped))
		respond(w, applied, skipped)
	})

	mux.HandleFunc("POST /api/regenerate", func(w http.ResponseWriter, r *http.Request) {
		text, ok := readText(w, r)
		if !ok {
			return
		}
		applied, skipped := session.RegenerateFromText(text)
		respond(w, applied, skipped)
	})

	mux.HandleFunc("GET /plan.svg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "no-cache")
		if err := planRenderer.RenderToSVG(w, session.Snapshot()); err != nil {
			log.Printf("[HTTP] Error encoding plan SVG: %v", err)
		}
	})

	mux.HandleFunc("GET /plan.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := planRenderer.RenderToPNG(w, session.Snapshot()); err != nil {
			log.Printf("[HTTP] Error encoding plan PNG: %v", err)
		}
	})

	mux.HandleFunc("GET /field.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		if err := rasterRenderer.WritePNG(w, session.Snapshot()); err != nil {
			log.Printf("[HTTP] Error encoding field PNG: %v", err)
		}
	})

	mux.HandleFunc("GET /plan.geojson", func(w http.ResponseWriter, r *http.Request) {
		data, err := planner.PlanFeatureCollection(session.Snapshot(), config.Scale()).MarshalJSON()
		if err != nil {
			http.Error(w, "failed to encode GeoJSON", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := w.Write(data); err != nil {
			log.Printf("[HTTP] Error writing GeoJSON: %v", err)
		}
	})

	return mux
}
