package models

import "time"

// Detection is a single detected object in original-image pixel coordinates.
// Confidence is rounded to 4 decimal places, box coordinates to 2.
type Detection struct {
	Class      string     `json:"class"`
	Confidence float64    `json:"confidence"`
	BBox       [4]float64 `json:"bbox"`
}

type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// PredictResult is the response body for a successful /predict call.
type PredictResult struct {
	Detections  []Detection `json:"detections"`
	Count       int         `json:"count"`
	InferenceMs float64     `json:"inference_ms"`
	ImageSize   ImageSize   `json:"image_size"`
	Model       string      `json:"model"`
	Runtime     string      `json:"runtime"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	Runtime     string `json:"runtime"`
	Model       string `json:"model"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// StageTimings breaks a single request down per pipeline stage.
// Logged at debug level; only the inference wall time is exposed to clients.
type StageTimings struct {
	RequestID   string
	ImageDecode time.Duration
	Preprocess  time.Duration
	Inference   time.Duration
	Postprocess time.Duration
	Total       time.Duration
}
