package backup

import (
	"io"
	"testing"
)

func SetOpenArtifact(t testing.TB, fn func(path string) (io.ReadCloser, error)) {
	prev := openArtifact
	openArtifact = fn
	t.Cleanup(func() {
		openArtifact = prev
	})
}
