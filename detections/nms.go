package detections

import (
	"sort"

	"github.com/chewxy/math32"
)

// box is a corner-form candidate in tensor coordinate space.
type box struct {
	x1, y1, x2, y2 float32
	score          float32
}

func (b box) area() float32 {
	return (b.x2 - b.x1) * (b.y2 - b.y1)
}

// iou computes Intersection-over-Union of two corner-form boxes.
// A degenerate zero-area box yields 0 against any other box.
func iou(a, b box) float32 {
	x1 := math32.Max(a.x1, b.x1)
	y1 := math32.Max(a.y1, b.y1)
	x2 := math32.Min(a.x2, b.x2)
	y2 := math32.Min(a.y2, b.y2)

	if x1 >= x2 || y1 >= y2 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a.area() + b.area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// nms performs greedy single-class non-maximum suppression: boxes are
// visited in descending confidence order, and every remaining box whose IoU
// with a selected box exceeds iouThreshold is dropped. The returned slice
// preserves the selection order (descending confidence).
func nms(boxes []box, iouThreshold float32) []box {
	if len(boxes) == 0 {
		return boxes
	}

	sort.SliceStable(boxes, func(i, j int) bool {
		return boxes[i].score > boxes[j].score
	})

	suppressed := make([]bool, len(boxes))
	kept := make([]box, 0, len(boxes))

	for i := 0; i < len(boxes); i++ {
		if suppressed[i] {
			continue
		}
		kept = append(kept, boxes[i])
		for j := i + 1; j < len(boxes); j++ {
			if suppressed[j] {
				continue
			}
			if iou(boxes[i], boxes[j]) > iouThreshold {
				suppressed[j] = true
			}
		}
	}

	return kept
}
