package main

import (
	"bytes"
	"context"
	"image"
	"math"
	"time"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"

	"github.com/shelfwatch/shelfwatch/detections"
	"github.com/shelfwatch/shelfwatch/models"
)

// Detector is what the dispatcher needs from the model lifecycle.
// *detections.Manager satisfies it; tests substitute stubs.
type Detector interface {
	Detect(ctx context.Context, img image.Image, targetSize int, confThreshold float32) ([]models.Detection, error)
	IsLoaded() bool
	Runtime() string
}

var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Dispatcher validates requests, offloads the detection unit of work and
// records outcome metrics. It owns no model state of its own.
type Dispatcher struct {
	detector Detector
	log      *logrus.Logger
	metrics  *Metrics

	modelName   string
	inputSize   int
	defaultConf float32
}

func NewDispatcher(detector Detector, log *logrus.Logger, metrics *Metrics, cfg Config) *Dispatcher {
	return &Dispatcher{
		detector:    detector,
		log:         log,
		metrics:     metrics,
		modelName:   cfg.ModelName,
		inputSize:   cfg.InputSize,
		defaultConf: cfg.ConfThreshold,
	}
}

// Handle runs one detection request end to end. confOverride replaces the
// default confidence threshold when it falls in (0,1]; any other value keeps
// the default. Validation failures short-circuit before any CPU-bound work
// is dispatched; unit-of-work failures come back as the generic inference
// error kind.
func (d *Dispatcher) Handle(ctx context.Context, requestID string, payload []byte, contentType string, confOverride float32) (*models.PredictResult, error) {
	d.metrics.InFlight.Inc()
	defer d.metrics.InFlight.Dec()

	if !allowedContentTypes[contentType] {
		d.metrics.Requests.WithLabelValues(statusErrorFormat).Inc()
		return nil, detections.NewUnsupportedFormatError(contentType)
	}

	if len(payload) > detections.MaxImageBytes {
		d.metrics.Requests.WithLabelValues(statusErrorSize).Inc()
		return nil, detections.NewPayloadTooLargeError(len(payload))
	}

	decodeStart := time.Now()
	img, err := imaging.Decode(bytes.NewReader(payload))
	if err != nil {
		d.metrics.Requests.WithLabelValues(statusErrorDecode).Inc()
		return nil, detections.NewDecodeError(err)
	}
	decodeTime := time.Since(decodeStart)

	conf := d.defaultConf
	if confOverride > 0 && confOverride <= 1 {
		conf = confOverride
	}

	start := time.Now()
	dets, err := d.detector.Detect(ctx, img, d.inputSize, conf)
	latency := time.Since(start)
	if err != nil {
		d.metrics.Requests.WithLabelValues(statusErrorInternal).Inc()
		d.log.WithFields(logrus.Fields{
			"req": requestID,
			"err": err,
		}).Error("detection failed")
		if detections.IsKind(err, detections.KindNotReady) {
			return nil, err
		}
		// Clients only ever see the generic category.
		return nil, detections.NewInferenceError(nil)
	}

	if dets == nil {
		dets = []models.Detection{}
	}

	bounds := img.Bounds()
	d.metrics.InferenceLatency.Observe(latency.Seconds())
	d.metrics.DetectionCount.Observe(float64(len(dets)))
	d.metrics.Requests.WithLabelValues(statusSuccess).Inc()

	d.log.WithFields(logrus.Fields{
		"req":        requestID,
		"detections": len(dets),
		"decode":     decodeTime.Round(time.Millisecond),
		"latency":    latency.Round(time.Millisecond),
		"width":      bounds.Dx(),
		"height":     bounds.Dy(),
	}).Info("predict")

	return &models.PredictResult{
		Detections:  dets,
		Count:       len(dets),
		InferenceMs: math.Round(latency.Seconds()*1000*100) / 100,
		ImageSize:   models.ImageSize{Width: bounds.Dx(), Height: bounds.Dy()},
		Model:       d.modelName,
		Runtime:     d.detector.Runtime(),
	}, nil
}
