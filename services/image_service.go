package services

import (
	"fmt"
	"net/http"
	"path"
	"strings"

	"rental-backend/reporting"

	"github.com/google/uuid"
)

const maxImageSize = 8 << 20

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// SaveImage stores an uploaded picture under subdir and returns its store path.
func SaveImage(store reporting.FileStore, subdir string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", Validation("error.emptyImage", "image is empty")
	}
	if len(data) > maxImageSize {
		return "", Validation("error.imageTooLarge", fmt.Sprintf("image exceeds %d MB", maxImageSize>>20))
	}
	ext, ok := imageExtensions[http.DetectContentType(data)]
	if !ok {
		return "", Validation("error.imageType", "only jpeg, png, webp and gif images are accepted")
	}
	name := path.Join("images", strings.Trim(subdir, "/"), uuid.NewString()+ext)
	if err := store.Write(name, data); err != nil {
		return "", Internal(fmt.Errorf("write image: %w", err))
	}
	return name, nil
}
