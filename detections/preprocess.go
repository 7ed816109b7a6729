package detections

import (
	"image"
	"image/color"
	"math"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"
)

// LetterboxTransform records the mapping applied by Preprocess so that
// Postprocess can invert it for the same request. Padding is truncated
// toward zero per axis; for odd remainders the extra pixel of gray margin
// lands on the bottom/right, and the inversion below assumes exactly that.
type LetterboxTransform struct {
	Ratio   float64 // uniform scale, min(size/origW, size/origH)
	PadLeft int     // x offset of the resized image on the canvas, in tensor pixels
	PadTop  int     // y offset, in tensor pixels
}

// Preprocess letterboxes img onto a size×size mid-gray canvas and writes the
// planar float32 tensor (1×3×size×size, RGB, values in [0,1]) into buf, which
// must hold 3*size*size values and be owned exclusively by the caller for the
// duration of the request.
func Preprocess(img image.Image, size int, buf []float32) LetterboxTransform {
	bounds := img.Bounds()
	origW := bounds.Dx()
	origH := bounds.Dy()

	ratio := math.Min(float64(size)/float64(origW), float64(size)/float64(origH))
	newW := int(float64(origW) * ratio)
	newH := int(float64(origH) * ratio)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}
	padLeft := (size - newW) / 2
	padTop := (size - newH) / 2

	resized := imaging.Resize(img, newW, newH, imaging.Linear)

	gray := color.NRGBA{R: PadValue, G: PadValue, B: PadValue, A: 255}
	canvas := imaging.New(size, size, gray)
	canvas = imaging.Paste(canvas, resized, image.Pt(padLeft, padTop))

	planarize(canvas, size, buf)

	return LetterboxTransform{Ratio: ratio, PadLeft: padLeft, PadTop: padTop}
}

// planarize converts the interleaved 8-bit RGBA canvas to planar float32 in
// [0,1], splitting rows across workers.
func planarize(canvas *image.NRGBA, size int, buf []float32) {
	channelSize := size * size
	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > size {
		numWorkers = size
	}
	rowsPerWorker := size / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		startRow := w * rowsPerWorker
		endRow := (w + 1) * rowsPerWorker
		if w == numWorkers-1 {
			endRow = size
		}

		go func(start, end int) {
			defer wg.Done()
			const inv = float32(1.0 / 255.0)
			for y := start; y < end; y++ {
				src := canvas.Pix[y*canvas.Stride:]
				dst := y * size
				for x := 0; x < size; x++ {
					p := x * 4
					i := dst + x
					buf[i] = float32(src[p]) * inv
					buf[channelSize+i] = float32(src[p+1]) * inv
					buf[channelSize*2+i] = float32(src[p+2]) * inv
				}
			}
		}(startRow, endRow)
	}

	wg.Wait()
}
