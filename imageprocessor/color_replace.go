package imageprocessor

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/w00dy1981/DigitalAssetsDownloader/logging"
)

// colorMatchRatio is the share of the image a range must cover to be treated as background
const colorMatchRatio = 0.1

// colorRange is an inclusive RGB range
type colorRange struct {
	name         string
	lower, upper rgb
}

// scalar converts an RGB bound to the BGR order of the Mat
func (c rgb) scalar() gocv.Scalar {
	return gocv.NewScalar(float64(c[2]), float64(c[1]), float64(c[0]), 0)
}

var backgroundColorRanges = []colorRange{
	{"bright green", rgb{0, 177, 64}, rgb{100, 255, 150}},
	{"green", rgb{40, 40, 40}, rgb{80, 255, 80}},
	{"black", rgb{0, 0, 0}, rgb{50, 50, 50}},
	{"light blue", rgb{100, 149, 237}, rgb{135, 206, 250}},
	{"blue", rgb{0, 0, 139}, rgb{0, 0, 255}},
}

// ColorReplaceStrategy whitens fixed screen colors that dominate the image
type ColorReplaceStrategy struct{}

// NewColorReplaceStrategy creates the fixed range strategy
func NewColorReplaceStrategy() ColorReplaceStrategy {
	return ColorReplaceStrategy{}
}

func (ColorReplaceStrategy) Name() Method {
	return MethodColorReplace
}

// Apply computes every range mask on the original image and applies the qualifying ones cumulatively
func (s ColorReplaceStrategy) Apply(img *image.RGBA) (*image.RGBA, bool, error) {
	mat, err := rgbaToMat(img)
	if err != nil {
		return nil, false, err
	}
	defer mat.Close()

	if mat.Empty() {
		return nil, false, fmt.Errorf("color replace: empty image")
	}

	total := img.Rect.Dx() * img.Rect.Dy()
	var out *image.RGBA

	for _, r := range backgroundColorRanges {
		mask, matched, err := rangeMask(mat, r)
		if err != nil {
			return nil, false, err
		}
		if float64(matched) > float64(total)*colorMatchRatio {
			if out == nil {
				out = cloneRGBA(img)
			}
			whiteOut(out, mask)
			logging.DebugLog("Replaced %s range %v-%v with white (%d pixels)", r.name, r.lower, r.upper, matched)
		}
	}

	if out == nil {
		return img, false, nil
	}
	return out, true, nil
}

// rangeMask returns the in-range mask bytes of mat and the number of matching pixels
func rangeMask(mat gocv.Mat, r colorRange) ([]byte, int, error) {
	mask := gocv.NewMat()
	defer mask.Close()

	if err := gocv.InRangeWithScalar(mat, r.lower.scalar(), r.upper.scalar(), &mask); err != nil {
		return nil, 0, fmt.Errorf("color replace %s: %w", r.name, err)
	}
	return mask.ToBytes(), gocv.CountNonZero(mask), nil
}
