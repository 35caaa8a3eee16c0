package imageprocessor

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// decodeImage decodes any registered format
func decodeImage(data []byte) (image.Image, FormatType, error) {
	img, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, FormatUnknown, err
	}
	return img, FormatType(name), nil
}

// flattenOnWhite composites img over an opaque white canvas using its alpha as the mask.
// Opaque images come out as a plain truecolor copy.
func flattenOnWhite(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

// rgbaToMat converts an RGBA image into a 3 channel BGR Mat
func rgbaToMat(img *image.RGBA) (gocv.Mat, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to convert image to Mat: %w", err)
	}
	return mat, nil
}

// encodeJPEG re-encodes img as JPEG at the given quality using OpenCV
func encodeJPEG(img *image.RGBA, quality int) ([]byte, error) {
	mat, err := rgbaToMat(img)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	defer buf.Close()

	// the native buffer is freed on Close
	out := append([]byte(nil), buf.GetBytes()...)
	if len(out) == 0 {
		return nil, fmt.Errorf("failed to encode JPEG: empty output")
	}
	return out, nil
}

// encodePNG encodes img losslessly, used for handing images to external tools
func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// cloneRGBA returns a deep copy of img
func cloneRGBA(img *image.RGBA) *image.RGBA {
	out := image.NewRGBA(img.Rect)
	copy(out.Pix, img.Pix)
	return out
}

// maskFromBytes wraps a single channel byte mask as a Mat
func maskFromBytes(rows, cols int, data []byte) (gocv.Mat, error) {
	mat, err := gocv.NewMatFromBytes(rows, cols, gocv.MatTypeCV8UC1, data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to build mask: %w", err)
	}
	return mat, nil
}

// closeMask runs a morphological close with an elliptical kernel and returns the closed mask bytes
func closeMask(mask gocv.Mat, kernelSize int) ([]byte, error) {
	if mask.Empty() {
		return nil, fmt.Errorf("failed to close mask: empty mask")
	}

	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(kernelSize, kernelSize))
	defer kernel.Close()

	closed := gocv.NewMat()
	defer closed.Close()
	if err := gocv.MorphologyEx(mask, &closed, gocv.MorphClose, kernel); err != nil {
		return nil, fmt.Errorf("failed to close mask: %w", err)
	}

	data := closed.ToBytes()
	if len(data) != mask.Rows()*mask.Cols() {
		return nil, fmt.Errorf("failed to close mask: got %d bytes for %dx%d", len(data), mask.Cols(), mask.Rows())
	}
	return data, nil
}

// whiteOut sets every pixel with a non-zero mask byte to opaque white
func whiteOut(img *image.RGBA, mask []byte) int {
	w := img.Rect.Dx()
	replaced := 0
	for i, m := range mask {
		if m == 0 {
			continue
		}
		x, y := i%w, i/w
		off := img.PixOffset(x+img.Rect.Min.X, y+img.Rect.Min.Y)
		img.Pix[off], img.Pix[off+1], img.Pix[off+2], img.Pix[off+3] = 255, 255, 255, 255
		replaced++
	}
	return replaced
}
