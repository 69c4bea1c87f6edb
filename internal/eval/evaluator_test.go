package eval

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Pkl evaluation needs the pkl binary and resolvable schemas, so the
// tests here exercise the JSON path, which shares the IR decoding.

func TestEvaluator_LoadConfig_JSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.json")
	content := `{
	  "resources": [
	    {
	      "kind": "aws:S3.Bucket",
	      "name": "artifacts",
	      "attrs": {"bucketName": "ml-artifacts", "versioning": true}
	    },
	    {
	      "kind": "aws:ECR.Repository",
	      "name": "training",
	      "enabled": false,
	      "dependsOn": ["aws:S3.Bucket/artifacts"],
	      "attrs": {"repositoryName": "training-images"}
	    }
	  ]
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := NewEvaluator(dir).LoadConfig(context.Background(), path, nil)
	require.NoError(t, err)
	require.Len(t, cfg.Resources, 2)

	bucket := cfg.Resources[0]
	assert.Equal(t, "aws:S3.Bucket", bucket.Kind)
	assert.Equal(t, "artifacts", bucket.Name)
	assert.True(t, bucket.IsEnabled())
	assert.Equal(t, "ml-artifacts", bucket.Attrs["bucketName"])

	repo := cfg.Resources[1]
	assert.False(t, repo.IsEnabled())
	assert.Equal(t, []string{"aws:S3.Bucket/artifacts"}, repo.DependsOn)
}

func TestEvaluator_LoadConfig_BadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"resources": [`), 0644))

	_, err := NewEvaluator(dir).LoadConfig(context.Background(), path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}
