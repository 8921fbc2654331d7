package http

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"perfpredict/ml"
)

type fakePredictor struct {
	value float64
	err   error
	calls int
}

func (f *fakePredictor) Predict(ctx context.Context, features ml.FeatureVector) (float64, error) {
	f.calls++
	return f.value, f.err
}

const validBody = `{"progress":75,"daysRemaining":10,"daysWorked":30,"avgRating":4.5}`

func newTestRouter(t *testing.T, predictor Predictor) http.Handler {
	t.Helper()
	handler := NewHandler(HandlerConfig{
		Predictor: predictor,
		Artifact: &ml.Artifact{
			ModelType:    ml.ModelTypeRandomForest,
			FeatureNames: ml.FeatureNames,
			TrainedAt:    time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			Samples:      2,
		},
		Stale: func() bool { return true },
	})
	return NewRouter(DefaultServerConfig(), handler, nil)
}

func doRequest(router http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	router := newTestRouter(t, &fakePredictor{})
	w := doRequest(router, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	expected := `{"status":"ok"}`
	if strings.TrimSpace(w.Body.String()) != expected {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestHandlePredict(t *testing.T) {
	predictor := &fakePredictor{value: 4.48}
	router := newTestRouter(t, predictor)

	w := doRequest(router, http.MethodPost, "/predict", validBody, map[string]string{"Content-Type": "application/json"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}

	var payload map[string]float64
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(payload) != 1 || payload["predictedRating"] != 4.48 {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestHandlePredictBadRequests(t *testing.T) {
	cases := map[string]string{
		"missing key":   `{"progress":75,"daysRemaining":10,"daysWorked":30}`,
		"null value":    `{"progress":null,"daysRemaining":10,"daysWorked":30,"avgRating":4.5}`,
		"string value":  `{"progress":"75","daysRemaining":10,"daysWorked":30,"avgRating":4.5}`,
		"bool value":    `{"progress":true,"daysRemaining":10,"daysWorked":30,"avgRating":4.5}`,
		"unknown key":   `{"progress":75,"daysRemaining":10,"daysWorked":30,"avgRating":4.5,"bonus":1}`,
		"not an object": `[75,10,30,4.5]`,
		"malformed":     `{"progress":75,`,
		"empty":         ``,
		"trailing data": validBody + `{}`,
	}
	for name, body := range cases {
		predictor := &fakePredictor{value: 4.48}
		router := newTestRouter(t, predictor)
		w := doRequest(router, http.MethodPost, "/predict", body, nil)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d: %s", name, w.Code, w.Body.String())
		}
		var payload map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil || payload["error"] == "" {
			t.Fatalf("%s: expected error payload, got %s", name, w.Body.String())
		}
		if predictor.calls != 0 {
			t.Fatalf("%s: model should not be called", name)
		}
	}
}

func TestHandlePredictBodyTooLarge(t *testing.T) {
	handler := NewHandler(HandlerConfig{Predictor: &fakePredictor{}})
	cfg := DefaultServerConfig()
	cfg.MaxBodyBytes = 16
	router := NewRouter(cfg, handler, nil)

	w := doRequest(router, http.MethodPost, "/predict", validBody, nil)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}

func TestHandlePredictInternalError(t *testing.T) {
	router := newTestRouter(t, &fakePredictor{err: errors.New("tree 3: invalid tree state")})
	w := doRequest(router, http.MethodPost, "/predict", validBody, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "tree 3") {
		t.Fatalf("internal detail leaked: %s", w.Body.String())
	}
}

func TestHandlePredictWithTrainedForest(t *testing.T) {
	features, targets := ml.Matrix(ml.DefaultDataset())
	forest := ml.NewRandomForest(ml.DefaultForestConfig())
	if err := forest.Train(features, targets); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	predictor, err := ml.NewPredictor(forest, ml.PredictorOptions{CacheSize: 16})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	router := newTestRouter(t, predictor)

	var first float64
	for i := 0; i < 3; i++ {
		w := doRequest(router, http.MethodPost, "/predict", validBody, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		var payload predictResponse
		if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		got := payload.PredictedRating
		if math.Round(got*100)/100 != got {
			t.Fatalf("expected two decimals, got %v", got)
		}
		if got < 4.1 || got > 4.6 {
			t.Fatalf("prediction %v outside target range", got)
		}
		if i == 0 {
			first = got
		} else if got != first {
			t.Fatalf("expected repeatable prediction %v, got %v", first, got)
		}
	}
}

func TestCORSAllowsAnyOrigin(t *testing.T) {
	router := newTestRouter(t, &fakePredictor{value: 4})
	origin := "https://hr.example.org"

	w := doRequest(router, http.MethodPost, "/predict", validBody, map[string]string{"Origin": origin})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != origin {
		t.Fatalf("expected origin %q allowed, got %q", origin, got)
	}

	w = doRequest(router, http.MethodOptions, "/predict", "", map[string]string{
		"Origin":                         origin,
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "Content-Type",
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", w.Code)
	}
	if !strings.Contains(w.Header().Get("Access-Control-Allow-Methods"), "POST") {
		t.Fatalf("expected POST allowed, got %q", w.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestCORSRestrictedOrigins(t *testing.T) {
	handler := NewHandler(HandlerConfig{Predictor: &fakePredictor{value: 4}})
	cfg := DefaultServerConfig()
	cfg.AllowedOrigins = []string{"https://hr.example.org"}
	router := NewRouter(cfg, handler, nil)

	w := doRequest(router, http.MethodPost, "/predict", validBody, map[string]string{"Origin": "https://evil.example.com"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no CORS header, got %q", got)
	}
}

func TestModelHandler(t *testing.T) {
	router := newTestRouter(t, &fakePredictor{})
	w := doRequest(router, http.MethodGet, "/model", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var payload modelResponse
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload.ModelType != ml.ModelTypeRandomForest || payload.Samples != 2 || !payload.Stale {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestPredictRejectsWrongMethod(t *testing.T) {
	router := newTestRouter(t, &fakePredictor{})
	w := doRequest(router, http.MethodGet, "/predict", "", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}
