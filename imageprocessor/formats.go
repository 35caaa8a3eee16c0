package imageprocessor

import (
	"bytes"
	"image"
	"path/filepath"
	"strings"
)

// FormatType represents a known image format type
type FormatType string

// Known image format constants
const (
	FormatUnknown FormatType = "unknown"
	FormatJPEG    FormatType = "jpeg"
	FormatPNG     FormatType = "png"
	FormatGIF     FormatType = "gif"
	FormatTIFF    FormatType = "tiff"
	FormatBMP     FormatType = "bmp"
	FormatWEBP    FormatType = "webp"
)

// Map of extensions to format types
var formatExtensions = map[string]FormatType{
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".png":  FormatPNG,
	".gif":  FormatGIF,
	".tif":  FormatTIFF,
	".tiff": FormatTIFF,
	".bmp":  FormatBMP,
	".webp": FormatWEBP,
}

var formatContentTypes = map[FormatType]string{
	FormatJPEG: "image/jpeg",
	FormatPNG:  "image/png",
	FormatGIF:  "image/gif",
	FormatTIFF: "image/tiff",
	FormatBMP:  "image/bmp",
	FormatWEBP: "image/webp",
}

// GetFileFormat returns the format type based on file extension
func GetFileFormat(path string) FormatType {
	ext := strings.ToLower(filepath.Ext(path))
	format, exists := formatExtensions[ext]
	if !exists {
		return FormatUnknown
	}
	return format
}

// ContentTypeForPath returns the image MIME type implied by a file extension, or ""
func ContentTypeForPath(path string) string {
	return formatContentTypes[GetFileFormat(path)]
}

// IsImageContentType reports whether a declared Content-Type is an image/* type
func IsImageContentType(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}

// DetectFormat sniffs the encoded format from the image header
func DetectFormat(data []byte) FormatType {
	_, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return FormatUnknown
	}
	if _, ok := formatContentTypes[FormatType(name)]; ok {
		return FormatType(name)
	}
	return FormatUnknown
}
