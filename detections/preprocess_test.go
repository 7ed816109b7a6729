package detections

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

func uniformImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestPreprocessWideImage(t *testing.T) {
	img := uniformImage(1000, 500, color.NRGBA{R: 200, G: 50, B: 25, A: 255})
	size := 640
	buf := make([]float32, 3*size*size)

	tr := Preprocess(img, size, buf)

	require.InDelta(t, 0.64, tr.Ratio, 1e-9)
	require.Equal(t, 0, tr.PadLeft)
	require.Equal(t, 160, tr.PadTop)

	channelSize := size * size

	// Top padding rows are the mid-gray fill.
	pad := float32(PadValue) / 255.0
	require.InDelta(t, pad, buf[0], 1e-6)
	require.InDelta(t, pad, buf[channelSize], 1e-6)
	require.InDelta(t, pad, buf[2*channelSize], 1e-6)
	require.InDelta(t, pad, buf[159*size+size/2], 1e-6)

	// Rows inside the pasted image carry the source color, planar RGB.
	center := 320*size + 320
	require.InDelta(t, 200.0/255.0, buf[center], 2.0/255.0)
	require.InDelta(t, 50.0/255.0, buf[channelSize+center], 2.0/255.0)
	require.InDelta(t, 25.0/255.0, buf[2*channelSize+center], 2.0/255.0)

	// Bottom padding resumes after the image region.
	require.InDelta(t, pad, buf[(160+320)*size+size/2], 1e-6)
}

func TestPreprocessTallImage(t *testing.T) {
	img := uniformImage(300, 600, color.NRGBA{R: 10, G: 10, B: 10, A: 255})
	size := 640
	buf := make([]float32, 3*size*size)

	tr := Preprocess(img, size, buf)

	require.InDelta(t, 640.0/600.0, tr.Ratio, 1e-9)
	// 300 * (640/600) = 320 → pad (640-320)/2 = 160 on the left.
	require.Equal(t, 160, tr.PadLeft)
	require.Equal(t, 0, tr.PadTop)
}

func TestPreprocessTransformInvariants(t *testing.T) {
	sizes := []struct{ w, h int }{
		{1, 1}, {7, 3}, {640, 640}, {1920, 1080}, {333, 777}, {5000, 13},
	}
	target := 640
	buf := make([]float32, 3*target*target)

	for _, s := range sizes {
		img := uniformImage(s.w, s.h, color.NRGBA{R: 90, G: 90, B: 90, A: 255})
		tr := Preprocess(img, target, buf)

		require.GreaterOrEqual(t, tr.PadLeft, 0, "size %dx%d", s.w, s.h)
		require.GreaterOrEqual(t, tr.PadTop, 0, "size %dx%d", s.w, s.h)
		require.Less(t, tr.PadLeft, target, "size %dx%d", s.w, s.h)
		require.Less(t, tr.PadTop, target, "size %dx%d", s.w, s.h)

		newW := int(float64(s.w) * tr.Ratio)
		newH := int(float64(s.h) * tr.Ratio)
		require.LessOrEqual(t, newW, target)
		require.LessOrEqual(t, newH, target)
	}
}

func TestPreprocessValuesInRange(t *testing.T) {
	img := uniformImage(100, 80, color.NRGBA{R: 255, G: 0, B: 128, A: 255})
	size := 64
	buf := make([]float32, 3*size*size)

	Preprocess(img, size, buf)

	for i, v := range buf {
		require.GreaterOrEqual(t, v, float32(0), "index %d", i)
		require.LessOrEqual(t, v, float32(1), "index %d", i)
	}
}

func TestPreprocessOddRemainderPads(t *testing.T) {
	// 639 = int(1000 * 0.6390), remainder 1: the extra pixel of margin goes
	// to the bottom/right, pads truncate toward zero.
	img := uniformImage(1000, 999, color.NRGBA{R: 40, G: 40, B: 40, A: 255})
	size := 639
	buf := make([]float32, 3*size*size)

	tr := Preprocess(img, size, buf)

	newH := int(float64(999) * tr.Ratio)
	require.Equal(t, (size-newH)/2, tr.PadTop)
	require.Equal(t, 0, tr.PadLeft)
}
