package imageprocessor

import (
	"github.com/w00dy1981/DigitalAssetsDownloader/logging"
	"github.com/w00dy1981/DigitalAssetsDownloader/types"
)

// NormalizedQuality is the fixed JPEG quality for normalized images
const NormalizedQuality = 95

// Normalizer converts any decodable image into a JPEG on an opaque white canvas
type Normalizer struct {
	Quality int
}

// NewNormalizer creates a Normalizer with the fixed quality
func NewNormalizer() *Normalizer {
	return &Normalizer{Quality: NormalizedQuality}
}

// Normalize decodes raw, flattens transparency onto white and re-encodes as JPEG
func (n *Normalizer) Normalize(raw []byte) ([]byte, error) {
	img, format, err := decodeImage(raw)
	if err != nil {
		return nil, types.NewError(types.ErrImageDecode, "error converting image", err)
	}

	out, err := encodeJPEG(flattenOnWhite(img), n.Quality)
	if err != nil {
		return nil, types.NewError(types.ErrImageDecode, "error converting image", err)
	}

	logging.DebugLog("Normalized %s image (%d bytes) to JPEG (%d bytes)", format, len(raw), len(out))
	return out, nil
}
