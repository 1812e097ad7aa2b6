package helper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useModelDir(t *testing.T) string {
	dir := t.TempDir()
	previous := ModelDir
	ModelDir = dir
	t.Cleanup(func() { ModelDir = previous })
	return dir
}

func TestPrepareModel(t *testing.T) {
	t.Run("Existing model is not downloaded again", func(t *testing.T) {
		dir := useModelDir(t)
		modelPath := filepath.Join(dir, "sentence-transformers_all-MiniLM-L6-v2")
		require.NoError(t, os.MkdirAll(modelPath, 0750))

		path, err := PrepareModel("sentence-transformers/all-MiniLM-L6-v2", "onnx/model.onnx")
		assert.NoError(t, err)
		assert.Equal(t, modelPath, path)
	})

	t.Run("Model name without organisation", func(t *testing.T) {
		dir := useModelDir(t)
		modelPath := filepath.Join(dir, "simple-model")
		require.NoError(t, os.MkdirAll(modelPath, 0750))

		path, err := PrepareModel("simple-model", "")
		assert.NoError(t, err)
		assert.Equal(t, modelPath, path)
	})

	t.Run("Download", func(t *testing.T) {
		if testing.Short() {
			t.Skip("downloads from the Hugging Face hub")
		}
		useModelDir(t)

		path, err := PrepareModel("sentence-transformers/all-MiniLM-L6-v2", "onnx/model.onnx")
		if err != nil {
			assert.Contains(t, err.Error(), "failed to", "Expected a download error without network")
			return
		}
		assert.DirExists(t, path)
	})
}
