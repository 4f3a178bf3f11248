package core

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/dhowden/tag"
)

// FormatID enumerates every recognised container.
type FormatID string

const (
	FmtJPEG FormatID = "jpeg"
	FmtPNG  FormatID = "png"
	FmtGIF  FormatID = "gif"
	FmtWebP FormatID = "webp"
	FmtTIFF FormatID = "tiff"
	FmtBMP  FormatID = "bmp"

	FmtUnknown FormatID = "unknown"
)

// HeadSize is the number of leading bytes Detect needs.
const HeadSize = 16

// extMap maps lowercase extensions to format IDs.
var extMap = map[string]FormatID{
	".jpg":  FmtJPEG,
	".jpeg": FmtJPEG,
	".jpe":  FmtJPEG,
	".png":  FmtPNG,
	".gif":  FmtGIF,
	".webp": FmtWebP,
	".tiff": FmtTIFF,
	".tif":  FmtTIFF,
	".bmp":  FmtBMP,
}

var mimeTypes = map[FormatID]string{
	FmtJPEG: "image/jpeg",
	FmtPNG:  "image/png",
	FmtGIF:  "image/gif",
	FmtWebP: "image/webp",
	FmtTIFF: "image/tiff",
	FmtBMP:  "image/x-ms-bmp",
}

// MIMEType returns the MIME type reported for a container.
func MIMEType(id FormatID) string {
	if m, ok := mimeTypes[id]; ok {
		return m
	}
	return "application/octet-stream"
}

// FormatForExt maps a file extension (with dot) to a FormatID.
func FormatForExt(ext string) FormatID {
	if id, ok := extMap[strings.ToLower(ext)]; ok {
		return id
	}
	return FmtUnknown
}

// Detect classifies a container from its leading bytes. It only peeks at
// head; the caller keeps ownership of the buffer.
func Detect(head []byte) (FormatID, error) {
	if id := detectMagic(head); id != FmtUnknown {
		return id, nil
	}
	if len(head) >= 11 {
		if _, ft, err := tag.Identify(bytes.NewReader(head)); err == nil && string(ft) != "" {
			return FmtUnknown, Errorf(UnsupportedFormat, "detect", "%s audio container carries no image metadata", ft)
		}
	}
	return FmtUnknown, Errorf(UnsupportedFormat, "detect", "unrecognised magic % X", head[:min(len(head), 8)])
}

// DetectFormat returns the FormatID for the given file, first by reading
// magic bytes and falling back to extension.
func DetectFormat(path string) (FormatID, error) {
	f, err := os.Open(path)
	if err != nil {
		return FmtUnknown, Wrap(IOError, "detect", err)
	}
	defer f.Close()

	buf := make([]byte, HeadSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && n == 0 {
		return FmtUnknown, Wrap(IOError, "detect", err)
	}
	buf = buf[:n]

	id, derr := Detect(buf)
	if derr == nil {
		return id, nil
	}

	// Fallback to extension
	dot := strings.LastIndex(path, ".")
	if dot >= 0 {
		if id := FormatForExt(path[dot:]); id != FmtUnknown {
			return id, nil
		}
	}
	return FmtUnknown, derr
}

func detectMagic(b []byte) FormatID {
	if len(b) < 4 {
		return FmtUnknown
	}
	switch {
	// JPEG: FF D8 FF
	case b[0] == 0xFF && b[1] == 0xD8 && b[2] == 0xFF:
		return FmtJPEG
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	case bytes.HasPrefix(b, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}):
		return FmtPNG
	// GIF: GIF87a or GIF89a
	case bytes.HasPrefix(b, []byte("GIF87a")) || bytes.HasPrefix(b, []byte("GIF89a")):
		return FmtGIF
	// WebP: RIFF????WEBP
	case len(b) >= 12 && bytes.Equal(b[0:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WEBP")):
		return FmtWebP
	// TIFF: 49 49 2A 00 (little-endian) or 4D 4D 00 2A (big-endian)
	case bytes.HasPrefix(b, []byte{0x49, 0x49, 0x2A, 0x00}) ||
		bytes.HasPrefix(b, []byte{0x4D, 0x4D, 0x00, 0x2A}):
		return FmtTIFF
	// BMP: 42 4D
	case b[0] == 0x42 && b[1] == 0x4D:
		return FmtBMP
	}
	return FmtUnknown
}
