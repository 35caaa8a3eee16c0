package imageprocessor

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/w00dy1981/DigitalAssetsDownloader/types"
)

var (
	green = color.RGBA{34, 139, 34, 255}
	red   = color.RGBA{200, 0, 0, 255}
	white = color.RGBA{255, 255, 255, 255}
	gray  = color.RGBA{128, 128, 128, 255}
)

func filled(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func fillRect(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

// greenBorderImage is a 100x100 image with a 30px green border, a white center and a red subject
func greenBorderImage() *image.RGBA {
	img := filled(100, 100, green)
	fillRect(img, image.Rect(30, 30, 70, 70), white)
	fillRect(img, image.Rect(45, 45, 55, 55), red)
	return img
}

func encodeTestPNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestSmartDetectReplacesUniformBorder(t *testing.T) {
	img := greenBorderImage()

	out, changed, err := NewSmartDetectStrategy().Apply(img)
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Equal(t, white, out.RGBAAt(0, 0))
	assert.Equal(t, white, out.RGBAAt(99, 99))
	assert.Equal(t, white, out.RGBAAt(15, 50))
	assert.Equal(t, white, out.RGBAAt(35, 35))
	assert.Equal(t, red, out.RGBAAt(50, 50))

	// input untouched
	assert.Equal(t, green, img.RGBAAt(0, 0))
}

func TestSmartDetectLeavesWhiteImageUnchanged(t *testing.T) {
	img := filled(80, 60, white)

	out, changed, err := NewSmartDetectStrategy().Apply(img)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, img.Pix, out.Pix)
}

func TestSmartDetectRejectsInconsistentCorners(t *testing.T) {
	img := filled(100, 100, white)
	// dark edge ring only 2px deep: dominant in samples, absent from most corner pixels
	fillRect(img, image.Rect(0, 0, 100, 2), gray)
	fillRect(img, image.Rect(0, 98, 100, 100), gray)

	_, changed, err := NewSmartDetectStrategy().Apply(img)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestDominantColorsTieKeepsFirstSeen(t *testing.T) {
	a, b, c := rgb{1, 1, 1}, rgb{2, 2, 2}, rgb{3, 3, 3}
	got := dominantColors([]rgb{a, b, c, c, b}, 2)
	assert.Equal(t, []rgb{b, c}, got)
}

func TestColorReplaceAboveThreshold(t *testing.T) {
	screen := color.RGBA{50, 200, 90, 255}

	img := filled(100, 100, gray)
	fillRect(img, image.Rect(0, 0, 100, 15), screen)

	out, changed, err := NewColorReplaceStrategy().Apply(img)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, white, out.RGBAAt(10, 5))
	assert.Equal(t, gray, out.RGBAAt(10, 50))
}

func TestColorReplaceBelowThreshold(t *testing.T) {
	screen := color.RGBA{50, 200, 90, 255}

	img := filled(100, 100, gray)
	fillRect(img, image.Rect(0, 0, 100, 5), screen)

	out, changed, err := NewColorReplaceStrategy().Apply(img)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, screen, out.RGBAAt(10, 2))
}

func TestEdgeDetectionKeepsLargestSubject(t *testing.T) {
	dark := color.RGBA{20, 20, 20, 255}
	img := filled(100, 100, gray)
	fillRect(img, image.Rect(30, 30, 70, 70), dark)

	out, changed, err := NewEdgeDetectionStrategy(DefaultEdgeThreshold).Apply(img)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, white, out.RGBAAt(2, 2))
	assert.Equal(t, white, out.RGBAAt(97, 97))
	assert.Equal(t, dark, out.RGBAAt(50, 50))
}

func TestEdgeDetectionWithoutContours(t *testing.T) {
	img := filled(60, 60, gray)

	out, changed, err := NewEdgeDetectionStrategy(DefaultEdgeThreshold).Apply(img)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, img.Pix, out.Pix)
}

func TestEdgeThresholdScalesCanny(t *testing.T) {
	s := NewEdgeDetectionStrategy(DefaultEdgeThreshold)
	assert.Equal(t, float32(50), s.lowThreshold)
	assert.Equal(t, float32(150), s.highThreshold)

	s = NewEdgeDetectionStrategy(60)
	assert.Equal(t, float32(100), s.lowThreshold)
	assert.Equal(t, float32(300), s.highThreshold)
}

func TestOpenCVErrorsAreReturned(t *testing.T) {
	empty := image.NewRGBA(image.Rectangle{})

	_, _, err := NewEdgeDetectionStrategy(DefaultEdgeThreshold).Apply(empty)
	assert.Error(t, err)

	_, _, err = NewColorReplaceStrategy().Apply(empty)
	assert.Error(t, err)

	_, _, err = replaceBackgroundColor(empty, rgb{34, 139, 34})
	assert.Error(t, err)

	mask := gocv.NewMat()
	defer mask.Close()
	_, err = closeMask(mask, 3)
	assert.Error(t, err)
}

func TestEdgeDetectionErrorFallsBackToSmartDetect(t *testing.T) {
	s := withFallback(NewEdgeDetectionStrategy(DefaultEdgeThreshold), NewSmartDetectStrategy())

	out, changed, err := s.Apply(image.NewRGBA(image.Rectangle{}))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.NotNil(t, out)
}

func TestCornerRegions(t *testing.T) {
	assert.Equal(t, []image.Rectangle{
		image.Rect(0, 0, 50, 50),
		image.Rect(350, 0, 400, 50),
		image.Rect(0, 250, 50, 300),
		image.Rect(350, 250, 400, 300),
	}, cornerRegions(400, 300))

	// small images: only the top-left region shrinks
	assert.Equal(t, []image.Rectangle{
		image.Rect(0, 0, 10, 10),
		image.Rect(0, 0, 40, 10),
		image.Rect(0, 0, 10, 40),
		image.Rect(0, 0, 40, 40),
	}, cornerRegions(40, 40))
}

type fakeSegmenter struct {
	out []byte
	err error
}

func (f fakeSegmenter) Segment([]byte) ([]byte, error) {
	return f.out, f.err
}

func TestAIRemovalCompositesCutoutOnWhite(t *testing.T) {
	cutout := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	cutout.SetNRGBA(5, 5, color.NRGBA{200, 0, 0, 255})

	s := NewAIRemovalStrategy(fakeSegmenter{out: encodeTestPNG(t, cutout)})
	out, changed, err := s.Apply(filled(10, 10, green))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, white, out.RGBAAt(0, 0))
	assert.Equal(t, red, out.RGBAAt(5, 5))
}

func TestAIRemovalFallsBackToSmartDetect(t *testing.T) {
	p, err := NewBackgroundProcessor(
		BackgroundProcessingConfig{Method: MethodAIRemoval},
		WithSegmenter(fakeSegmenter{err: errors.New("model missing")}),
	)
	require.NoError(t, err)

	strategy := p.registry.Get(MethodAIRemoval)
	require.NotNil(t, strategy)

	out, changed, err := strategy.Apply(greenBorderImage())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, white, out.RGBAAt(0, 0))
}

type panickingStrategy struct{}

func (panickingStrategy) Name() Method { return MethodEdgeDetection }

func (panickingStrategy) Apply(*image.RGBA) (*image.RGBA, bool, error) {
	panic("boom")
}

func TestFallbackRecoversPanics(t *testing.T) {
	s := withFallback(panickingStrategy{}, NewSmartDetectStrategy())
	out, changed, err := s.Apply(greenBorderImage())
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, white, out.RGBAAt(0, 0))
}

func TestProcessFailsOpenOnUndecodableBytes(t *testing.T) {
	p, err := NewBackgroundProcessor(DefaultBackgroundConfig())
	require.NoError(t, err)

	input := []byte("definitely not an image")
	out := p.Process(input)
	assert.False(t, out.Applied)
	assert.Equal(t, input, out.Bytes())
	assert.Equal(t, types.ErrImageDecode, types.KindOf(out.Err))
}

func TestProcessReencodesAsJPEG(t *testing.T) {
	p, err := NewBackgroundProcessor(BackgroundProcessingConfig{Method: MethodSmartDetect, Quality: 90})
	require.NoError(t, err)

	out := p.Process(encodeTestPNG(t, greenBorderImage()))
	require.NoError(t, out.Err)
	assert.True(t, out.Applied)
	assert.True(t, out.Changed)
	assert.Equal(t, FormatJPEG, DetectFormat(out.Bytes()))

	decoded, _, err := decodeImage(out.Bytes())
	require.NoError(t, err)
	r, g, b, _ := decoded.At(2, 2).RGBA()
	assert.Greater(t, r>>8, uint32(245))
	assert.Greater(t, g>>8, uint32(245))
	assert.Greater(t, b>>8, uint32(245))
}

func TestBackgroundConfigNormalize(t *testing.T) {
	cfg := BackgroundProcessingConfig{Method: " Edge_Detection ", Quality: 150, EdgeThreshold: 5}.Normalize()
	assert.Equal(t, MethodEdgeDetection, cfg.Method)
	assert.Equal(t, MaxQuality, cfg.Quality)
	assert.Equal(t, MinEdgeThreshold, cfg.EdgeThreshold)
	assert.NoError(t, cfg.Validate())

	def := BackgroundProcessingConfig{}.Normalize()
	assert.Equal(t, DefaultBackgroundConfig(), def)
}

func TestBackgroundConfigRejectsUnknownMethod(t *testing.T) {
	_, err := NewBackgroundProcessor(BackgroundProcessingConfig{Method: "magic"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "magic")
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod(" COLOR_replace")
	require.NoError(t, err)
	assert.Equal(t, MethodColorReplace, m)

	_, err = ParseMethod("chroma")
	assert.Error(t, err)
}
