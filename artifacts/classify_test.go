package artifacts

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/testharbor/testharbor/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		path string
		kind types.ArtifactKind
		ok   bool
	}{
		{
			name: "png screenshot",
			path: filepath.Join("test-results", "checkout-failed", "test-failed-1.png"),
			kind: types.ArtifactScreenshot,
			ok:   true,
		},
		{
			name: "jpeg screenshot",
			path: filepath.Join("test-results", "snap.JPEG"),
			kind: types.ArtifactScreenshot,
			ok:   true,
		},
		{
			name: "webm video",
			path: filepath.Join("test-results", "checkout", "video.webm"),
			kind: types.ArtifactVideo,
			ok:   true,
		},
		{
			name: "mp4 video",
			path: filepath.Join("test-results", "recording.mp4"),
			kind: types.ArtifactVideo,
			ok:   true,
		},
		{
			name: "trace archive",
			path: filepath.Join("test-results", "checkout", "trace.zip"),
			kind: types.ArtifactTrace,
			ok:   true,
		},
		{
			name: "zip without trace in the name is not an artifact",
			path: filepath.Join("test-results", "bundle.zip"),
			ok:   false,
		},
		{
			name: "json under report directory",
			path: filepath.Join("report", "report.json"),
			kind: types.ArtifactReport,
			ok:   true,
		},
		{
			name: "html under report directory",
			path: filepath.Join("some", "report", "index.html"),
			kind: types.ArtifactReport,
			ok:   true,
		},
		{
			name: "json outside report directory is not an artifact",
			path: filepath.Join("test-results", "metadata.json"),
			ok:   false,
		},
		{
			name: "unrelated file",
			path: filepath.Join("test-results", "notes.log"),
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := Classify(tt.path)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.kind, kind)
			}
		})
	}
}
