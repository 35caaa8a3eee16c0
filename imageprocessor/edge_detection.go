package imageprocessor

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/w00dy1981/DigitalAssetsDownloader/logging"
)

// cannyLowAtDefault is the low Canny threshold used at DefaultEdgeThreshold
const cannyLowAtDefault = 50

// EdgeDetectionStrategy keeps the largest outlined subject and fades everything else to white
type EdgeDetectionStrategy struct {
	lowThreshold  float32
	highThreshold float32
}

// NewEdgeDetectionStrategy scales the Canny thresholds with threshold; the default of 30 gives 50/150
func NewEdgeDetectionStrategy(threshold int) EdgeDetectionStrategy {
	if threshold <= 0 {
		threshold = DefaultEdgeThreshold
	}
	low := float32(threshold) * cannyLowAtDefault / DefaultEdgeThreshold
	return EdgeDetectionStrategy{
		lowThreshold:  low,
		highThreshold: low * 3,
	}
}

func (EdgeDetectionStrategy) Name() Method {
	return MethodEdgeDetection
}

func (s EdgeDetectionStrategy) Apply(img *image.RGBA) (*image.RGBA, bool, error) {
	w, h := img.Rect.Dx(), img.Rect.Dy()

	src, err := rgbaToMat(img)
	if err != nil {
		return nil, false, err
	}
	defer src.Close()
	if src.Empty() {
		return nil, false, fmt.Errorf("edge detection: empty image")
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	if err := gocv.GaussianBlur(src, &blurred, image.Pt(5, 5), 0, 0, gocv.BorderDefault); err != nil {
		return nil, false, fmt.Errorf("edge detection blur: %w", err)
	}

	edges := gocv.NewMat()
	defer edges.Close()
	if err := gocv.Canny(blurred, &edges, s.lowThreshold, s.highThreshold); err != nil {
		return nil, false, fmt.Errorf("edge detection canny: %w", err)
	}

	contours := gocv.FindContours(edges, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	if contours.Size() == 0 {
		return img, false, nil
	}

	largest, largestArea := -1, -1.0
	for i := 0; i < contours.Size(); i++ {
		area := gocv.ContourArea(contours.At(i))
		if area > largestArea {
			largest, largestArea = i, area
		}
	}

	subject := gocv.NewPointsVectorFromPoints([][]image.Point{contours.At(largest).ToPoints()})
	defer subject.Close()

	mask := gocv.Zeros(h, w, gocv.MatTypeCV8UC1)
	defer mask.Close()
	if err := gocv.FillPoly(&mask, subject, color.RGBA{R: 255, G: 255, B: 255, A: 255}); err != nil {
		return nil, false, fmt.Errorf("edge detection mask: %w", err)
	}

	closedBytes, err := closeMask(mask, 10)
	if err != nil {
		return nil, false, err
	}
	closed, err := maskFromBytes(h, w, closedBytes)
	if err != nil {
		return nil, false, err
	}
	defer closed.Close()

	soft := gocv.NewMat()
	defer soft.Close()
	if err := gocv.GaussianBlur(closed, &soft, image.Pt(5, 5), 0, 0, gocv.BorderDefault); err != nil {
		return nil, false, fmt.Errorf("edge detection mask blur: %w", err)
	}

	weights := soft.ToBytes()
	if len(weights) != w*h {
		return nil, false, fmt.Errorf("mask size %d does not match image %dx%d", len(weights), w, h)
	}

	logging.DebugLog("Edge detection kept contour %d of %d (area %.0f)", largest, contours.Size(), largestArea)
	return blendOnWhite(img, weights), true, nil
}

// blendOnWhite computes img*m + white*(1-m) per pixel with m = weight/255
func blendOnWhite(img *image.RGBA, weights []byte) *image.RGBA {
	out := cloneRGBA(img)
	w := img.Rect.Dx()
	for i, wt := range weights {
		m := float64(wt) / 255
		off := out.PixOffset(i%w+out.Rect.Min.X, i/w+out.Rect.Min.Y)
		for k := 0; k < 3; k++ {
			out.Pix[off+k] = uint8(float64(out.Pix[off+k])*m + 255*(1-m))
		}
		out.Pix[off+3] = 255
	}
	return out
}
