package cache_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fieldsafe/kumo/internal/cache"
)

func TestGenerationName(t *testing.T) {
	assert.Equal(t, "app-cache-v1.0.0", cache.GenerationName("1.0.0"))
}

func TestIsGenerationName(t *testing.T) {
	assert.True(t, cache.IsGenerationName("app-cache-v1.0.0"))
	assert.False(t, cache.IsGenerationName("app-cache-v"))
	assert.False(t, cache.IsGenerationName("some-other-cache"))
}

func TestGenerationVersion(t *testing.T) {
	assert.Equal(t, "1.0.1", cache.GenerationVersion("app-cache-v1.0.1"))
	assert.Equal(t, "", cache.GenerationVersion("not-a-generation"))
}
