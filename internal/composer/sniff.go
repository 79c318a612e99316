package composer

import (
	"bytes"
	"image"
	"net/http"

	// Registered decoders for DecodeConfig-based validation.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"meridian/internal/models"
)

const (
	maxImageDimension = 8192
)

// validateImage checks that data decodes as a supported image and fits the
// dimension bounds. Runs before any network call; failures are local
// validation errors, never transient ones.
func validateImage(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return models.NewValidationError("attachment is not a supported image (jpeg, png, gif, webp)")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return models.NewValidationError("attachment image has invalid dimensions")
	}
	if cfg.Width > maxImageDimension || cfg.Height > maxImageDimension {
		return models.NewValidationError("attachment image exceeds the maximum dimensions")
	}
	return nil
}

// detectContentType returns the declared content type, sniffing the payload
// when the caller did not provide one.
func detectContentType(declared string, data []byte) string {
	if declared != "" {
		return declared
	}
	return http.DetectContentType(data)
}
