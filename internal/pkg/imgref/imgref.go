// Package imgref canonicalizes image references carried in environment
// state. Callers may hand in a URL, a filesystem path, raw encoded image
// bytes, or a decoded image; all of them normalize to a single string
// form suitable for storage in a jsonb column.
package imgref

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/agentgym/episodic-backend/internal/domain"
)

const dataURLPrefix = "data:image/png;base64,"

// Normalize returns the canonical string form of an image reference.
// Strings pass through untouched; byte slices and decoded images are
// embedded as base64 PNG data URLs.
func Normalize(ref any) (string, error) {
	switch v := ref.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return "", domain.ValidationError("image reference is empty")
		}
		return v, nil
	case []byte:
		if len(v) == 0 {
			return "", domain.ValidationError("image bytes are empty")
		}
		img, _, err := image.Decode(bytes.NewReader(v))
		if err != nil {
			return "", domain.ValidationError("undecodable image bytes: " + err.Error())
		}
		return encodePNG(img)
	case image.Image:
		return encodePNG(v)
	case nil:
		return "", domain.ValidationError("image reference is nil")
	default:
		return "", domain.ValidationError("unsupported image reference type")
	}
}

// NormalizeAll normalizes a mixed batch, failing on the first bad entry.
func NormalizeAll(refs []any) ([]string, error) {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		s, err := Normalize(ref)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// IsDataURL reports whether the reference embeds the image inline.
func IsDataURL(ref string) bool {
	return strings.HasPrefix(ref, "data:image/")
}

func encodePNG(img image.Image) (string, error) {
	if img == nil {
		return "", domain.ValidationError("image is nil")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
