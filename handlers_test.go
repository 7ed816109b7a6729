package main

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/shelfwatch/shelfwatch/detections"
	"github.com/shelfwatch/shelfwatch/models"
)

func newTestApp(stub *stubDetector) *App {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	metrics := NewMetrics()
	cfg := testConfig()
	dispatcher := NewDispatcher(stub, log, metrics, cfg)
	return NewApp(dispatcher, stub, metrics, cfg)
}

// multipartBody builds a multipart form with one "image" part carrying an
// explicit content type.
func multipartBody(t *testing.T, field, filename, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return &buf, w.FormDataContentType()
}

func TestHealthEndpoint(t *testing.T) {
	app := newTestApp(&stubDetector{loaded: true})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body models.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	require.Equal(t, "healthy", body.Status)
	require.True(t, body.ModelLoaded)
	require.Equal(t, "onnx-cpu", body.Runtime)
	require.Equal(t, "yolo11l", body.Model)
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(&stubDetector{loaded: true})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "shelfwatch_requests_total")
}

func TestPredictSuccess(t *testing.T) {
	stub := &stubDetector{
		loaded: true,
		detections: []models.Detection{
			{Class: "objects", Confidence: 0.92, BBox: [4]float64{100, 200, 300, 400}},
		},
	}
	app := newTestApp(stub)

	body, contentType := multipartBody(t, "image", "shelf.jpg", "image/jpeg", testJPEG(t, 100, 100))
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result models.PredictResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	require.Equal(t, 1, result.Count)
	require.Equal(t, "objects", result.Detections[0].Class)
	require.Equal(t, 100, result.ImageSize.Width)
}

func TestPredictCustomConfidence(t *testing.T) {
	stub := &stubDetector{loaded: true}
	app := newTestApp(stub)

	body, contentType := multipartBody(t, "image", "shelf.jpg", "image/jpeg", testJPEG(t, 32, 32))
	req := httptest.NewRequest(http.MethodPost, "/predict?confidence=0.5", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float32(0.5), stub.gotConf)
}

func TestPredictRejectsUnsupportedFormat(t *testing.T) {
	app := newTestApp(&stubDetector{loaded: true})

	body, contentType := multipartBody(t, "image", "anim.gif", "image/gif", []byte("GIF89a fake"))
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	require.Equal(t, "unsupported_format", errResp.Code)
}

func TestPredictRejectsMissingField(t *testing.T) {
	app := newTestApp(&stubDetector{loaded: true})

	body, contentType := multipartBody(t, "photo", "shelf.jpg", "image/jpeg", testJPEG(t, 16, 16))
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	require.Equal(t, "invalid_request", errResp.Code)
}

func TestPredictNotReady(t *testing.T) {
	stub := &stubDetector{err: detections.NewNotReadyError()}
	app := newTestApp(stub)

	body, contentType := multipartBody(t, "image", "shelf.jpg", "image/jpeg", testJPEG(t, 16, 16))
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var errResp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	require.Equal(t, "not_ready", errResp.Code)
}

func TestPredictInternalErrorIsGeneric(t *testing.T) {
	stub := &stubDetector{loaded: true, err: errSecret{}}
	app := newTestApp(stub)

	body, contentType := multipartBody(t, "image", "shelf.jpg", "image/jpeg", testJPEG(t, 16, 16))
	req := httptest.NewRequest(http.MethodPost, "/predict", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "secret")

	var errResp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	require.Equal(t, "inference_error", errResp.Code)
}

func TestPredictMethodNotAllowed(t *testing.T) {
	app := newTestApp(&stubDetector{loaded: true})

	req := httptest.NewRequest(http.MethodGet, "/predict", nil)
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
