package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"cortexmap/internal/models"
	"cortexmap/pkg/atlas"
	"cortexmap/pkg/calibration"
	"cortexmap/pkg/engine"
)

const testSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="200" height="100">
  <rect id="MMperX" width="10" height="1"/>
  <rect id="MMperY" width="1" height="10"/>
  <rect id="YZero" y="50" width="1" height="1"/>
  <path id="RhinalFissure" d="M10,0 L10,100"/>
  <path id="A_Motor" d="M0,0 H100 V100 H0 Z"/>
  <path id="A_Visual" d="M100,0 H200 V100 H100 Z"/>
</svg>`

func newTestServer(t *testing.T, opts Options) http.Handler {
	t.Helper()
	dataDir := t.TempDir()

	write := func(rel, data string) {
		path := filepath.Join(dataDir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", rel, err)
		}
	}
	write("mouse/mouse_map.svg", testSVG)
	write("mouse/bregma_level_widths.json", `[[0,10],[1,10]]`)
	write("broken/broken_map.svg", `<svg/>`)
	write("broken/bregma_level_widths.json", `[[0,10]]`)

	opts.Mode = gin.TestMode
	store := atlas.NewStore(dataDir, atlas.DefaultOptions(), calibration.TieBreakFirst, 0, nil)
	return New(store, engine.New(2, 0, nil), opts, nil).Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func lesionPayload(time int) map[string]any {
	return map[string]any{
		"time": time,
		"rows": []map[string]any{
			{"plane": 0, "d1": 5, "d2": 3, "d3": 2},
			{"plane": 1, "d1": 5, "d2": 3, "d3": 2},
		},
	}
}

func TestHealth(t *testing.T) {
	w := do(t, newTestServer(t, Options{}), http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestGetAtlas(t *testing.T) {
	h := newTestServer(t, Options{})

	w := do(t, h, http.MethodGet, "/api/v1/atlases/mouse", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp atlasResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Name != "mouse" || len(resp.Regions) != 2 || resp.TotalArea != 20000 {
		t.Errorf("Unexpected atlas %+v", resp)
	}
	if resp.Calibration.UnitsPerMMX != 10 || len(resp.CalibrationEntries) != 2 {
		t.Errorf("Unexpected calibration %+v, %v", resp.Calibration, resp.CalibrationEntries)
	}

	w = do(t, h, http.MethodGet, "/api/v1/atlases", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 listing atlases, got %d", w.Code)
	}
}

func TestAtlasErrors(t *testing.T) {
	h := newTestServer(t, Options{})

	tests := []struct {
		path     string
		wantCode int
		wantKind string
	}{
		{"/api/v1/atlases/rat", http.StatusNotFound, "NotFound"},
		{"/api/v1/atlases/bad!name", http.StatusBadRequest, "BadRequest"},
		{"/api/v1/atlases/broken", http.StatusInternalServerError, "AtlasParseError"},
	}

	for _, tt := range tests {
		w := do(t, h, http.MethodGet, tt.path, nil)
		if w.Code != tt.wantCode {
			t.Errorf("GET %s: expected %d, got %d", tt.path, tt.wantCode, w.Code)
			continue
		}
		var resp errorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to decode error: %v", err)
		}
		if resp.Kind != tt.wantKind {
			t.Errorf("GET %s: expected kind %s, got %s", tt.path, tt.wantKind, resp.Kind)
		}
	}
}

func TestMap(t *testing.T) {
	h := newTestServer(t, Options{})

	w := do(t, h, http.MethodPost, "/api/v1/atlases/mouse/map", lesionPayload(4))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var result models.MappingResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}
	if result.Time != 4 || len(result.Contour.Points) != 4 {
		t.Errorf("Unexpected result: time %d, %d contour points", result.Time, len(result.Contour.Points))
	}

	// 30 x 10 atlas units inside Motor
	motor, ok := result.Region("Motor")
	if !ok || motor.Percent != 3 || motor.AreaMM2 != 3 {
		t.Errorf("Unexpected Motor result %+v", motor)
	}
	total, ok := result.Region(models.TotalLabel)
	if !ok || total.AreaMM2 != 3 {
		t.Errorf("Unexpected Total result %+v", total)
	}
}

func TestMapElectrodes(t *testing.T) {
	h := newTestServer(t, Options{})

	body := map[string]any{
		"format": "electrode",
		"rows": []map[string]any{
			{"plane": 0, "d1": 5, "d2": 5, "label": "ch1"},
		},
	}
	w := do(t, h, http.MethodPost, "/api/v1/atlases/mouse/map", body)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var result models.MappingResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("Failed to decode result: %v", err)
	}
	if len(result.Electrodes) != 1 || result.Electrodes[0].Label != "ch1" {
		t.Errorf("Unexpected electrodes %+v", result.Electrodes)
	}
}

func TestMapErrors(t *testing.T) {
	h := newTestServer(t, Options{})

	tests := []struct {
		name     string
		path     string
		body     any
		wantCode int
	}{
		{"malformed json", "/api/v1/atlases/mouse/map", `{"rows":`, http.StatusBadRequest},
		{"missing rows", "/api/v1/atlases/mouse/map", `{}`, http.StatusBadRequest},
		{"single row", "/api/v1/atlases/mouse/map", map[string]any{"rows": []map[string]any{{"plane": 0, "d1": 1, "d2": 1, "d3": 1}}}, http.StatusUnprocessableEntity},
		{"unknown format", "/api/v1/atlases/mouse/map", map[string]any{"format": "laser", "rows": []map[string]any{}}, http.StatusUnprocessableEntity},
		{"unknown atlas", "/api/v1/atlases/rat/map", lesionPayload(0), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.wantCode {
				t.Errorf("Expected %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
		})
	}
}

func TestSeries(t *testing.T) {
	h := newTestServer(t, Options{})

	body := map[string]any{"requests": []any{lesionPayload(2), lesionPayload(1)}}
	w := do(t, h, http.MethodPost, "/api/v1/atlases/mouse/series", body)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp seriesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(resp.Results) != 2 || resp.Results[0].Time != 1 || resp.Results[1].Time != 2 {
		t.Fatalf("Expected results ordered by time, got %d results", len(resp.Results))
	}
	want := []string{"Area", "%_1", "mm_1", "%_2", "mm_2"}
	if fmt.Sprint(resp.Combined[0]) != fmt.Sprint(want) {
		t.Errorf("Expected header %v, got %v", want, resp.Combined[0])
	}
	if last := resp.Combined[len(resp.Combined)-1]; last[0] != models.TotalLabel {
		t.Errorf("Expected Total as the last row, got %v", last)
	}
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, Options{RequestsPerSecond: 0.001, Burst: 1})

	if w := do(t, h, http.MethodPost, "/api/v1/atlases/mouse/map", lesionPayload(0)); w.Code != http.StatusOK {
		t.Fatalf("Expected the first request to pass, got %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/api/v1/atlases/mouse/map", lesionPayload(0)); w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429, got %d", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/v1/atlases/mouse", nil); w.Code != http.StatusOK {
		t.Errorf("Expected atlas reads to stay unlimited, got %d", w.Code)
	}
}

func TestWriteErrorStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := New(nil, nil, Options{}, nil)

	tests := []struct {
		err      error
		wantCode int
	}{
		{&models.Error{Kind: models.MappingError, Message: "slow", Transient: true}, http.StatusGatewayTimeout},
		{models.NewMappingError("bad rows"), http.StatusUnprocessableEntity},
		{fmt.Errorf("time point 3: %w", models.NewMappingError("bad rows")), http.StatusUnprocessableEntity},
		{models.NewAtlasParseError("no markers"), http.StatusInternalServerError},
		{fmt.Errorf("%w: rat", atlas.ErrNotFound), http.StatusNotFound},
		{&atlas.NameError{Name: "x/y"}, http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

		s.writeError(c, tt.err)
		if w.Code != tt.wantCode {
			t.Errorf("writeError(%v): expected %d, got %d", tt.err, tt.wantCode, w.Code)
		}
	}
}
