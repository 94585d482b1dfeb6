package cache

import "strings"

// GenerationPrefix is shared with the generated worker script so both prune
// the same namespace on activation.
const GenerationPrefix = "app-cache-v"

// GenerationName builds the cache generation name for an app version,
// e.g. "app-cache-v1.0.3".
func GenerationName(version string) string {
	return GenerationPrefix + version
}

// IsGenerationName reports whether s names a cache generation owned by this
// worker, of any version.
func IsGenerationName(s string) bool {
	return strings.HasPrefix(s, GenerationPrefix) && len(s) > len(GenerationPrefix)
}

// GenerationVersion extracts the version from a generation name. It returns
// "" when s is not a generation name.
func GenerationVersion(s string) string {
	if !IsGenerationName(s) {
		return ""
	}
	return strings.TrimPrefix(s, GenerationPrefix)
}
