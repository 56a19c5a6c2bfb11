package validate

import (
	"encoding/base64"
	"net/http"
	"strings"

	"tournament-desk/internal/apperr"
)

// MaxImageBytes caps the decoded event image.
const MaxImageBytes = 3 << 20

var imageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// Image checks a self-contained data URL of the form
// data:<mime>;base64,<payload>.
func Image(dataURL string) error {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return apperr.ErrUnsupportedImageType
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return apperr.ErrUnsupportedImageType
	}
	mime, enc, _ := strings.Cut(meta, ";")
	mime = strings.ToLower(strings.TrimSpace(mime))
	if !imageTypes[mime] || !strings.EqualFold(enc, "base64") {
		return apperr.ErrUnsupportedImageType
	}

	// cheap bound before decoding
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxImageBytes+2 {
		return apperr.ErrImageTooLarge
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return apperr.Invalid("imageDataUrl", "image data is not valid base64")
	}
	if len(raw) > MaxImageBytes {
		return apperr.ErrImageTooLarge
	}
	if !strings.HasPrefix(http.DetectContentType(raw), "image/") {
		return apperr.ErrUnsupportedImageType
	}
	return nil
}
