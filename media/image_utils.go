package media

import (
	"path/filepath"
	"strings"
)

var supportedPictureExtensions = map[string]bool{
	".jpg": true, ".jpeg": true,
}

// IsPictureFile checks if the filename has an extension the pipeline ingests
func IsPictureFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return supportedPictureExtensions[ext]
}
