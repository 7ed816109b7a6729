package main

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/shelfwatch/shelfwatch/detections"
	"github.com/shelfwatch/shelfwatch/models"
)

// App wires the dispatcher into the HTTP surface.
type App struct {
	dispatcher *Dispatcher
	detector   Detector
	metrics    *Metrics
	modelName  string
	uiDir      string
}

func NewApp(dispatcher *Dispatcher, detector Detector, metrics *Metrics, cfg Config) *App {
	return &App{
		dispatcher: dispatcher,
		detector:   detector,
		metrics:    metrics,
		modelName:  cfg.ModelName,
		uiDir:      cfg.UIDir,
	}
}

// Router builds the full handler chain: routes wrapped in gzip compression
// and permissive CORS, matching the service's browser-facing UI.
func (a *App) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", a.metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/predict", a.handlePredict).Methods(http.MethodPost)

	if a.uiDir != "" {
		if _, err := os.Stat(a.uiDir); err == nil {
			r.PathPrefix("/static/").Handler(
				http.StripPrefix("/static/", http.FileServer(http.Dir(a.uiDir))))
			r.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
				http.ServeFile(w, req, filepath.Join(a.uiDir, "index.html"))
			}).Methods(http.MethodGet)
		}
	}

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "X-Request-ID"}),
	)
	return cors(handlers.CompressHandler(r))
}

func (a *App) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:      "healthy",
		ModelLoaded: a.detector.IsLoaded(),
		Runtime:     a.detector.Runtime(),
		Model:       a.modelName,
	})
}

// handlePredict accepts a multipart upload (field "image") with an optional
// "confidence" query parameter and returns the detection result.
func (a *App) handlePredict(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()[:8]
	}

	// Bound the read a little above the payload cap so oversized uploads
	// are rejected by the dispatcher with a specific reason, not mid-read.
	r.Body = http.MaxBytesReader(w, r.Body, detections.MaxImageBytes+1<<20)

	if err := r.ParseMultipartForm(detections.MaxImageBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "could not parse multipart form")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing form field \"image\"")
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "could not read upload")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	}

	var confOverride float32
	if v := r.URL.Query().Get("confidence"); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			confOverride = float32(f)
		}
	}

	result, err := a.dispatcher.Handle(r.Context(), requestID, payload, contentType, confOverride)
	if err != nil {
		status, code := errorStatus(err)
		writeError(w, status, code, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// errorStatus maps pipeline error kinds onto HTTP statuses and stable codes.
func errorStatus(err error) (int, string) {
	switch detections.KindOf(err) {
	case detections.KindUnsupportedFormat:
		return http.StatusBadRequest, "unsupported_format"
	case detections.KindPayloadTooLarge:
		return http.StatusBadRequest, "payload_too_large"
	case detections.KindDecode:
		return http.StatusBadRequest, "decode_error"
	case detections.KindNotReady:
		return http.StatusServiceUnavailable, "not_ready"
	default:
		return http.StatusInternalServerError, "inference_error"
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, models.ErrorResponse{Code: code, Message: message})
}
