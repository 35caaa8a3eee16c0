package imageprocessor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/w00dy1981/DigitalAssetsDownloader/logging"
)

// Segmenter cuts the subject out of a PNG and returns a PNG with an alpha mask
type Segmenter interface {
	Segment(png []byte) ([]byte, error)
}

// RembgSegmenter runs the rembg CLI on temporary files
type RembgSegmenter struct {
	Command string
	Timeout time.Duration
}

// NewRembgSegmenter uses the rembg binary from PATH
func NewRembgSegmenter() *RembgSegmenter {
	return &RembgSegmenter{Command: "rembg", Timeout: 2 * time.Minute}
}

// Check if the segmentation command is available on the system
func (s *RembgSegmenter) available() (string, bool) {
	path, err := exec.LookPath(s.Command)
	return path, err == nil
}

func (s *RembgSegmenter) Segment(input []byte) ([]byte, error) {
	path, ok := s.available()
	if !ok {
		return nil, fmt.Errorf("%s not available", s.Command)
	}

	tempDir, err := os.MkdirTemp("", "assetdl-rembg-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	inPath := filepath.Join(tempDir, "input.png")
	outPath := filepath.Join(tempDir, "output.png")
	if err := os.WriteFile(inPath, input, 0644); err != nil {
		return nil, fmt.Errorf("failed to write segmentation input: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, "i", inPath, outPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		logging.LogWarning("%s failed: %v, stderr: %s", s.Command, err, stderr.String())
		return nil, fmt.Errorf("%s failed: %w", s.Command, err)
	}

	return os.ReadFile(outPath)
}

// AIRemovalStrategy delegates segmentation to an external model and composites the cutout onto white
type AIRemovalStrategy struct {
	segmenter Segmenter
}

// NewAIRemovalStrategy creates the strategy around a Segmenter
func NewAIRemovalStrategy(segmenter Segmenter) AIRemovalStrategy {
	return AIRemovalStrategy{segmenter: segmenter}
}

func (AIRemovalStrategy) Name() Method {
	return MethodAIRemoval
}

func (s AIRemovalStrategy) Apply(img *image.RGBA) (*image.RGBA, bool, error) {
	if s.segmenter == nil {
		return nil, false, fmt.Errorf("no segmenter configured")
	}

	input, err := encodePNG(img)
	if err != nil {
		return nil, false, err
	}

	output, err := s.segmenter.Segment(input)
	if err != nil {
		return nil, false, err
	}

	cutout, _, err := decodeImage(output)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode segmentation output: %w", err)
	}

	return flattenOnWhite(cutout), true, nil
}
