package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shelfwatch/shelfwatch/detections"
)

// Config is the process-wide configuration, read once from the environment
// at startup and passed explicitly from there on.
type Config struct {
	Addr          string  // listen address
	WeightsPath   string  // ONNX weights artifact
	ConfThreshold float32 // default confidence threshold
	InputSize     int     // square tensor size; 0 = use the model's declared size
	ModelName     string  // label for responses and metrics
	PoolSize      int     // inference worker count
	OnnxLibPath   string  // onnxruntime shared library override
	UIDir         string  // static UI directory; empty disables it
}

func loadConfig() (Config, error) {
	cfg := Config{
		Addr:          ":" + envString("PORT", "8000"),
		WeightsPath:   envString("WEIGHTS_PATH", "weights/best.onnx"),
		ConfThreshold: detections.DefaultConfThreshold,
		InputSize:     detections.DefaultInputSize,
		ModelName:     envString("MODEL_NAME", "yolo11l"),
		PoolSize:      detections.DefaultPoolSize,
		OnnxLibPath:   envString("ONNX_LIB_PATH", ""),
		UIDir:         envString("UI_DIR", "ui"),
	}

	if v := os.Getenv("CONF_THRESH"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil || f <= 0 || f > 1 {
			return cfg, fmt.Errorf("CONF_THRESH %q must be a float in (0,1]", v)
		}
		cfg.ConfThreshold = float32(f)
	}
	if v := os.Getenv("IMG_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("IMG_SIZE %q must be a positive integer", v)
		}
		cfg.InputSize = n
	}
	if v := os.Getenv("POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("POOL_SIZE %q must be a positive integer", v)
		}
		cfg.PoolSize = n
	}

	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
