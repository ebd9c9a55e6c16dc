package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kwv/fllplanner/planner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func newTestServer(t *testing.T) (*planner.Session, http.Handler) {
	t.Helper()
	cfg := planner.DefaultConfig()
	session := planner.NewSession(cfg)
	return session, newHTTPServer(session, cfg)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeMutation(t *testing.T, rec *httptest.ResponseRecorder) mutationResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp mutationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// ---------------------------------------------------------------------------
// read endpoints
// ---------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	session, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var status map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status["status"])
	assert.Equal(t, session.ID(), status["sessionId"])
	assert.Equal(t, true, status["hasPose"])
}

func TestState(t *testing.T) {
	_, h := newTestServer(t)
	resp := decodeMutation(t, do(t, h, http.MethodGet, "/api/state", ""))

	assert.True(t, resp.State.HasPose)
	assert.NotNil(t, resp.Skipped)
	assert.Len(t, resp.State.Footprint, 4)
}

func TestMethodNotAllowed(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/api/undo", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// ---------------------------------------------------------------------------
// mutations
// ---------------------------------------------------------------------------

func TestClickTurnMarkerUndo(t *testing.T) {
	_, h := newTestServer(t)

	resp := decodeMutation(t, do(t, h, http.MethodPost, "/api/click", `{"x": 80, "y": 240}`))
	assert.True(t, resp.Applied)
	assert.Equal(t, "Rotate 0.0°\nDrive 10.00\"", resp.State.Telemetry)

	resp = decodeMutation(t, do(t, h, http.MethodPost, "/api/turn", ""))
	assert.True(t, resp.Applied)
	assert.True(t, resp.State.PendingTurn)

	resp = decodeMutation(t, do(t, h, http.MethodPost, "/api/click", `{"x": 200, "y": 240}`))
	assert.True(t, resp.Applied)
	assert.InDelta(t, 0, resp.State.Pose.Heading, 1e-9)

	resp = decodeMutation(t, do(t, h, http.MethodPost, "/api/marker", ""))
	assert.True(t, resp.Applied)
	require.Len(t, resp.State.Markers, 1)

	resp = decodeMutation(t, do(t, h, http.MethodPost, "/api/undo", ""))
	assert.True(t, resp.Applied)
	assert.Empty(t, resp.State.Markers)
	assert.Equal(t, 2, resp.State.StepCount)

	rec := do(t, h, http.MethodGet, "/api/telemetry", "")
	assert.Equal(t, "Rotate 0.0°\nDrive 10.00\"\nRotate -90.0°", rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
}

func TestClick_ScreenSpace(t *testing.T) {
	_, h := newTestServer(t)
	_, fieldHeight := planner.DefaultConfig().FieldSize()

	// screen y is measured down from the top of the field
	body := fmt.Sprintf(`{"x": 80, "y": %g, "space": "screen"}`, fieldHeight-240)
	resp := decodeMutation(t, do(t, h, http.MethodPost, "/api/click", body))

	assert.True(t, resp.Applied)
	assert.InDelta(t, 240, resp.State.Pose.Y, 1e-9)
}

func TestClick_Invalid(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/api/click", `{"x": 1, "y": 2, "space": "polar"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/click", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// clicking the current position is ignored, not an error
	resp := decodeMutation(t, do(t, h, http.MethodPost, "/api/click", `{"x": 80, "y": 80}`))
	assert.False(t, resp.Applied)
}

func TestStartPose(t *testing.T) {
	session, h := newTestServer(t)
	first := session.ID()

	resp := decodeMutation(t, do(t, h, http.MethodPost, "/api/start", `{"x": "10", "y": 2, "angle": "90"}`))
	assert.True(t, resp.Applied)
	assert.NotEqual(t, first, resp.SessionID)
	assert.InDelta(t, 160, resp.State.Pose.X, 1e-9)
	assert.InDelta(t, 0, resp.State.Pose.Heading, 1e-9)

	resp = decodeMutation(t, do(t, h, http.MethodPost, "/api/start", `{"x": "ten", "y": 2, "angle": 0}`))
	assert.False(t, resp.Applied)
	assert.InDelta(t, 160, resp.State.Pose.X, 1e-9)

	resp = decodeMutation(t, do(t, h, http.MethodPost, "/api/start", `{"y": 2, "angle": 0}`))
	assert.False(t, resp.Applied, "missing x is ignored")
}

func TestProfile(t *testing.T) {
	session, h := newTestServer(t)

	resp := decodeMutation(t, do(t, h, http.MethodPost, "/api/profile", `{"length": 3, "width": "2"}`))
	assert.True(t, resp.Applied)
	assert.Equal(t, planner.RobotProfile{Length: 3, Width: 2}, session.State().Profile)

	resp = decodeMutation(t, do(t, h, http.MethodPost, "/api/profile", `{"length": 0, "width": 2}`))
	assert.False(t, resp.Applied)
}

func TestReset(t *testing.T) {
	_, h := newTestServer(t)
	do(t, h, http.MethodPost, "/api/click", `{"x": 80, "y": 240}`)

	resp := decodeMutation(t, do(t, h, http.MethodPost, "/api/reset", ""))
	assert.True(t, resp.Applied)
	assert.Equal(t, 0, resp.State.StepCount)
}

func TestTelemetryUploadAndRegenerate(t *testing.T) {
	session, h := newTestServer(t)
	first := session.ID()

	resp := decodeMutation(t, do(t, h, http.MethodPost, "/api/telemetry", "Rotate 90.0°\nDrive 2.00\"\nRotate x°\n"))
	assert.True(t, resp.Applied)
	require.Len(t, resp.Skipped, 1)
	assert.Equal(t, 3, resp.Skipped[0].Line)
	assert.NotEqual(t, first, resp.SessionID)
	assert.InDelta(t, 180, resp.State.Pose.Heading, 1e-9)

	loaded := resp.SessionID
	resp = decodeMutation(t, do(t, h, http.MethodPost, "/api/regenerate", "MARKER 7 at (1.00, 1.00)"))
	assert.True(t, resp.Applied)
	assert.Equal(t, loaded, resp.SessionID)
	assert.Equal(t, 8, resp.State.NextMarkerID)
	assert.Empty(t, resp.Skipped)
}

func TestTelemetryUpload_TooLarge(t *testing.T) {
	session, h := newTestServer(t)
	before := session.ID()

	body := strings.Repeat("Rotate 1.0°\n", maxTelemetryBody/10)
	rec := do(t, h, http.MethodPost, "/api/telemetry", body)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, before, session.ID())
	assert.Equal(t, 0, session.Snapshot().StepCount)
}

func TestOverflowingInputIsIgnored(t *testing.T) {
	session, h := newTestServer(t)

	resp := decodeMutation(t, do(t, h, http.MethodPost, "/api/telemetry", "Drive 1e307\""))
	assert.False(t, resp.Applied)
	assert.Equal(t, 0, resp.State.StepCount)

	resp = decodeMutation(t, do(t, h, http.MethodPost, "/api/click", `{"x": 1e308, "y": -1e308}`))
	assert.False(t, resp.Applied)

	// state still encodes
	resp = decodeMutation(t, do(t, h, http.MethodGet, "/api/state", ""))
	assert.Equal(t, 0, resp.State.StepCount)
	assert.Empty(t, session.Snapshot().Telemetry)
}

// ---------------------------------------------------------------------------
// renders
// ---------------------------------------------------------------------------

func TestRenderEndpoints(t *testing.T) {
	_, h := newTestServer(t)
	do(t, h, http.MethodPost, "/api/click", `{"x": 80, "y": 240}`)
	do(t, h, http.MethodPost, "/api/marker", "")

	t.Run("svg", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/plan.svg", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/svg+xml", rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Body.String(), "<svg")
	})

	for _, path := range []string{"/plan.png", "/field.png"} {
		t.Run(path, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, path, "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
			_, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
			assert.NoError(t, err)
		})
	}

	t.Run("geojson", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/plan.geojson", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))

		var fc struct {
			Features []struct {
				Properties map[string]any `json:"properties"`
			} `json:"features"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fc))
		assert.Len(t, fc.Features, 4) // segment, marker, footprint, heading
	})
}

// ---------------------------------------------------------------------------
// inputValue
// ---------------------------------------------------------------------------

func TestInputValue(t *testing.T) {
	var req startRequest
	require.NoError(t, json.Unmarshal([]byte(`{"x": 1.5, "y": " 2 "}`), &req))
	assert.Equal(t, inputValue("1.5"), req.X)
	assert.Equal(t, inputValue(" 2 "), req.Y)
	assert.Equal(t, inputValue(""), req.Angle)
	assert.Equal(t, "0", inputValue("").orZero())
}
