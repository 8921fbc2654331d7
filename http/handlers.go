package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"perfpredict/ml"
)

// Predictor is the inference dependency of the handlers.
type Predictor interface {
	Predict(ctx context.Context, features ml.FeatureVector) (float64, error)
}

type HandlerConfig struct {
	Predictor Predictor
	// Artifact describes the loaded model for GET /model. Optional.
	Artifact *ml.Artifact
	// Stale reports whether the artifact on disk has changed since load.
	// Optional.
	Stale  func() bool
	Logger *zap.Logger
}

// Handler serves the prediction API. All of its state is fixed at
// construction.
type Handler struct {
	predictor Predictor
	artifact  *ml.Artifact
	stale     func() bool
	logger    *zap.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		predictor: cfg.Predictor,
		artifact:  cfg.Artifact,
		stale:     cfg.Stale,
		logger:    logger,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /model", h.handleModel)
	mux.HandleFunc("POST /predict", h.handlePredict)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type modelResponse struct {
	ModelType    string    `json:"modelType"`
	FeatureNames []string  `json:"featureNames"`
	TrainedAt    time.Time `json:"trainedAt"`
	Samples      int       `json:"samples"`
	Stale        bool      `json:"stale"`
}

func (h *Handler) handleModel(w http.ResponseWriter, r *http.Request) {
	if h.artifact == nil {
		writeError(w, http.StatusNotFound, "model metadata unavailable")
		return
	}
	resp := modelResponse{
		ModelType:    h.artifact.ModelType,
		FeatureNames: h.artifact.FeatureNames,
		TrainedAt:    h.artifact.TrainedAt,
		Samples:      h.artifact.Samples,
	}
	if h.stale != nil {
		resp.Stale = h.stale()
	}
	writeJSON(w, http.StatusOK, resp)
}

// predictRequest uses pointers so an absent key is distinguishable from 0.
type predictRequest struct {
	Progress      *float64 `json:"progress"`
	DaysRemaining *float64 `json:"daysRemaining"`
	DaysWorked    *float64 `json:"daysWorked"`
	AvgRating     *float64 `json:"avgRating"`
}

type predictResponse struct {
	PredictedRating float64 `json:"predictedRating"`
}

func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	features, err := decodePredictRequest(r.Body)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	rating, err := h.predictor.Predict(r.Context(), features)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, predictResponse{PredictedRating: rating})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		h.logger.Debug("rejected request",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("reason", reqErr.Message))
		writeError(w, reqErr.Status, reqErr.Message)
		return
	}
	h.logger.Error("prediction failed",
		zap.String("request_id", GetRequestID(r.Context())),
		zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// decodePredictRequest accepts exactly one JSON object carrying the four
// numeric feature keys and nothing else.
func decodePredictRequest(body io.Reader) (ml.FeatureVector, error) {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	var req predictRequest
	if err := dec.Decode(&req); err != nil {
		var maxBytes *http.MaxBytesError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &maxBytes):
			return ml.FeatureVector{}, &RequestError{Status: http.StatusRequestEntityTooLarge, Message: "request body too large"}
		case errors.As(err, &typeErr):
			if typeErr.Field != "" {
				return ml.FeatureVector{}, badRequest("field %s must be a number", typeErr.Field)
			}
			return ml.FeatureVector{}, badRequest("request body must be a JSON object")
		case errors.Is(err, io.EOF):
			return ml.FeatureVector{}, badRequest("request body is empty")
		default:
			return ml.FeatureVector{}, badRequest("invalid JSON body: %v", err)
		}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return ml.FeatureVector{}, badRequest("request body must contain a single JSON object")
	}

	values := []*float64{req.Progress, req.DaysRemaining, req.DaysWorked, req.AvgRating}
	for i, v := range values {
		if v == nil {
			return ml.FeatureVector{}, badRequest("missing field %s", ml.FeatureNames[i])
		}
	}
	return ml.FeatureVector{
		Progress:      *req.Progress,
		DaysRemaining: *req.DaysRemaining,
		DaysWorked:    *req.DaysWorked,
		AvgRating:     *req.AvgRating,
	}, nil
}
