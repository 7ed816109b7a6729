package detections

import (
	"fmt"
	"math"

	"github.com/shelfwatch/shelfwatch/models"
)

// Postprocess parses a raw YOLO output tensor into detections in original
// image coordinates, ordered by descending confidence.
//
// The raw tensor is (1, 5, N) or (1, N, 5), channel order
// (x_center, y_center, width, height, class_confidence) in tensor space.
func Postprocess(raw []float32, shape []int64, confThreshold float32, origW, origH int, tr LetterboxTransform, className string) ([]models.Detection, error) {
	rows, chanFirst, err := outputLayout(raw, shape)
	if err != nil {
		return nil, err
	}

	at := func(i, c int) float32 {
		if chanFirst {
			return raw[c*rows+i]
		}
		return raw[i*5+c]
	}

	// Confidence filter, then center-form to corner-form.
	candidates := make([]box, 0, 128)
	for i := 0; i < rows; i++ {
		score := at(i, 4)
		if score < confThreshold {
			continue
		}
		cx, cy := at(i, 0), at(i, 1)
		halfW, halfH := at(i, 2)*0.5, at(i, 3)*0.5
		candidates = append(candidates, box{
			x1:    cx - halfW,
			y1:    cy - halfH,
			x2:    cx + halfW,
			y2:    cy + halfH,
			score: score,
		})
	}

	detections := make([]models.Detection, 0, len(candidates))
	if len(candidates) == 0 {
		return detections, nil
	}

	kept := nms(candidates, NmsIouThreshold)

	// Undo the letterbox mapping and clip to the original image bounds.
	for _, b := range kept {
		x1 := invert(b.x1, tr.PadLeft, tr.Ratio, origW)
		y1 := invert(b.y1, tr.PadTop, tr.Ratio, origH)
		x2 := invert(b.x2, tr.PadLeft, tr.Ratio, origW)
		y2 := invert(b.y2, tr.PadTop, tr.Ratio, origH)
		detections = append(detections, models.Detection{
			Class:      className,
			Confidence: round4(float64(b.score)),
			BBox:       [4]float64{round2(x1), round2(y1), round2(x2), round2(y2)},
		})
	}

	return detections, nil
}

// outputLayout determines how many predictions the tensor holds and whether
// the 5 channels occupy the second axis.
func outputLayout(raw []float32, shape []int64) (rows int, chanFirst bool, err error) {
	if len(shape) != 3 || shape[0] != 1 {
		return 0, false, fmt.Errorf("unexpected output shape %v", shape)
	}
	switch {
	case shape[1] == 5 && shape[2] != 5:
		rows, chanFirst = int(shape[2]), true
	case shape[2] == 5:
		rows, chanFirst = int(shape[1]), false
	default:
		return 0, false, fmt.Errorf("output shape %v has no channel axis of 5", shape)
	}
	if len(raw) < rows*5 {
		return 0, false, fmt.Errorf("output buffer holds %d values, want %d", len(raw), rows*5)
	}
	return rows, chanFirst, nil
}

// invert maps a tensor-space coordinate back to original image space,
// clipping to [0, bound].
func invert(v float32, pad int, ratio float64, bound int) float64 {
	out := (float64(v) - float64(pad)) / ratio
	if out < 0 {
		return 0
	}
	if out > float64(bound) {
		return float64(bound)
	}
	return out
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
