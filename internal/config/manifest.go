package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest is the app-shell manifest: the deployed version, the assets to
// precache, and the strategy table. It is the one file a deploy bumps.
type Manifest struct {
	Version          string   `yaml:"version"`
	ShellAssets      []string `yaml:"shellAssets"`
	APIPrefixes      []string `yaml:"apiPrefixes"`
	BackendHosts     []string `yaml:"backendHosts"`
	StaticExtensions []string `yaml:"staticExtensions"`
}

func LoadManifest(path string) (Manifest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := yaml.Unmarshal(b, &m); err != nil {
		return Manifest{}, err
	}

	if m.Version == "" {
		return Manifest{}, fmt.Errorf("%s: version is required", path)
	}
	if len(m.ShellAssets) == 0 {
		m.ShellAssets = []string{"/"}
	}
	for i, asset := range m.ShellAssets {
		if !strings.HasPrefix(asset, "/") {
			return Manifest{}, fmt.Errorf("%s: shellAssets[%d] %q must be root-relative", path, i, asset)
		}
	}
	if len(m.APIPrefixes) == 0 {
		m.APIPrefixes = []string{"/api/"}
	}
	if len(m.StaticExtensions) == 0 {
		m.StaticExtensions = []string{
			".js", ".css", ".png", ".jpg", ".jpeg", ".gif", ".svg",
			".ico", ".woff", ".woff2", ".ttf",
		}
	}
	for i, ext := range m.StaticExtensions {
		if !strings.HasPrefix(ext, ".") {
			m.StaticExtensions[i] = "." + ext
		}
		m.StaticExtensions[i] = strings.ToLower(m.StaticExtensions[i])
	}

	return m, nil
}
