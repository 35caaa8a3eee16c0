package imageprocessor

import (
	"image"
	"sort"

	"github.com/w00dy1981/DigitalAssetsDownloader/logging"
)

const (
	edgeSampleDepth     = 10
	dominantColorCount  = 5
	maxBackgroundBright = 240
	cornerRegionSize    = 50
	cornerMatchDistance = 25
	cornerMatchRatio    = 0.6
	replaceDistance     = 30
)

type rgb [3]uint8

func (c rgb) brightness() float64 {
	return (float64(c[0]) + float64(c[1]) + float64(c[2])) / 3
}

// distance is the per-channel absolute difference sum
func (c rgb) distance(o rgb) int {
	d := 0
	for k := 0; k < 3; k++ {
		diff := int(c[k]) - int(o[k])
		if diff < 0 {
			diff = -diff
		}
		d += diff
	}
	return d
}

func pixelAt(img *image.RGBA, x, y int) rgb {
	off := img.PixOffset(x+img.Rect.Min.X, y+img.Rect.Min.Y)
	return rgb{img.Pix[off], img.Pix[off+1], img.Pix[off+2]}
}

// SmartDetectStrategy finds a uniform non-white border color and replaces it with white
type SmartDetectStrategy struct{}

// NewSmartDetectStrategy creates the edge sampling strategy
func NewSmartDetectStrategy() SmartDetectStrategy {
	return SmartDetectStrategy{}
}

func (SmartDetectStrategy) Name() Method {
	return MethodSmartDetect
}

func (s SmartDetectStrategy) Apply(img *image.RGBA) (*image.RGBA, bool, error) {
	for _, candidate := range dominantColors(sampleEdgeRing(img), dominantColorCount) {
		if candidate.brightness() > maxBackgroundBright {
			continue
		}
		if !isSolidBackground(img, candidate) {
			continue
		}

		out, replaced, err := replaceBackgroundColor(img, candidate)
		if err != nil {
			return nil, false, err
		}
		logging.DebugLog("Replaced background color %v with white (%d pixels)", candidate, replaced)
		return out, replaced > 0, nil
	}
	return img, false, nil
}

// sampleEdgeRing samples strips along all four sides of the image
func sampleEdgeRing(img *image.RGBA) []rgb {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	depthX := min(edgeSampleDepth, w/10)
	depthY := min(edgeSampleDepth, h/10)
	stepX := max(1, w/20)
	stepY := max(1, h/20)

	var samples []rgb
	for x := 0; x < w; x += stepX {
		for y := 0; y < depthY; y++ {
			samples = append(samples, pixelAt(img, x, y), pixelAt(img, x, h-1-y))
		}
	}
	for y := 0; y < h; y += stepY {
		for x := 0; x < depthX; x++ {
			samples = append(samples, pixelAt(img, x, y), pixelAt(img, w-1-x, y))
		}
	}
	return samples
}

// dominantColors returns up to n colors by frequency; ties keep first-seen order
func dominantColors(samples []rgb, n int) []rgb {
	counts := make(map[rgb]int)
	var order []rgb
	for _, c := range samples {
		if counts[c] == 0 {
			order = append(order, c)
		}
		counts[c]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > n {
		order = order[:n]
	}
	return order
}

// cornerRegions returns the four sampled corner rectangles.
// The top-left one shrinks to a quarter of small images; the others are anchored 50px from the far edges.
func cornerRegions(w, h int) []image.Rectangle {
	nearX := min(cornerRegionSize, w/4)
	nearY := min(cornerRegionSize, h/4)
	farX := max(0, w-cornerRegionSize)
	farY := max(0, h-cornerRegionSize)

	return []image.Rectangle{
		image.Rect(0, 0, nearX, nearY),
		image.Rect(farX, 0, w, nearY),
		image.Rect(0, farY, nearX, h),
		image.Rect(farX, farY, w, h),
	}
}

// isSolidBackground checks whether more than 60% of the corner pixels match bg
func isSolidBackground(img *image.RGBA, bg rgb) bool {
	matching, total := 0, 0
	for _, r := range cornerRegions(img.Rect.Dx(), img.Rect.Dy()) {
		for y := r.Min.Y; y < r.Max.Y; y += 2 {
			for x := r.Min.X; x < r.Max.X; x += 2 {
				total++
				if pixelAt(img, x, y).distance(bg) < cornerMatchDistance {
					matching++
				}
			}
		}
	}

	if total == 0 {
		return false
	}
	return float64(matching)/float64(total) > cornerMatchRatio
}

// replaceBackgroundColor whitens every pixel close to bg after closing small gaps in the mask
func replaceBackgroundColor(img *image.RGBA, bg rgb) (*image.RGBA, int, error) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	mask := make([]byte, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if pixelAt(img, x, y).distance(bg) < replaceDistance {
				mask[y*w+x] = 255
			}
		}
	}

	maskMat, err := maskFromBytes(h, w, mask)
	if err != nil {
		return nil, 0, err
	}
	defer maskMat.Close()

	closed, err := closeMask(maskMat, 3)
	if err != nil {
		return nil, 0, err
	}

	out := cloneRGBA(img)
	replaced := whiteOut(out, closed)
	return out, replaced, nil
}
