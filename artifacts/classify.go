package artifacts

import (
	"path/filepath"
	"strings"

	"github.com/testharbor/testharbor/types"
)

// Classify maps a discovered file to an artifact kind from its extension
// and the path segment it was found under. Trace archives are identified by
// filename convention rather than extension alone. The second return value
// is false for files that are not artifacts.
func Classify(path string) (types.ArtifactKind, bool) {
	base := strings.ToLower(filepath.Base(path))
	ext := filepath.Ext(base)

	if underSegment(path, "report") {
		switch ext {
		case ".json", ".html", ".txt", ".xml":
			return types.ArtifactReport, true
		}
	}

	switch ext {
	case ".png", ".jpg", ".jpeg":
		return types.ArtifactScreenshot, true
	case ".webm", ".mp4", ".avi":
		return types.ArtifactVideo, true
	case ".zip":
		if strings.Contains(base, "trace") {
			return types.ArtifactTrace, true
		}
	}
	return "", false
}

// underSegment reports whether any directory segment of the path matches
// the given name.
func underSegment(path, segment string) bool {
	dir := filepath.Dir(path)
	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if strings.EqualFold(part, segment) {
			return true
		}
	}
	return false
}
