package workspace

import (
	"fmt"
	"path"
	"strings"
)

// Backend identifies the workspace storage backend.
type Backend string

const (
	BackendLocal Backend = "local"
	BackendMinIO Backend = "minio"
)

// Config holds all settings needed to reach a workspace backend.
type Config struct {
	// Backend is the storage backend (e.g. BackendLocal).
	Backend Backend `yaml:"backend"`

	// Root is the directory holding one sub-directory per workspace
	// (local backend only).
	Root string `yaml:"root"`

	// Endpoint is the host:port of the storage server.
	// Example: "localhost:9000" for local MinIO.
	Endpoint string `yaml:"endpoint"`

	// AccessKey is the access key ID (MinIO / S3 style).
	AccessKey string `yaml:"access_key"`

	// SecretKey is the secret access key.
	SecretKey string `yaml:"secret_key"`

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool `yaml:"use_ssl"`

	// Region is used by region-aware backends (e.g. AWS S3).
	// Leave empty for MinIO.
	Region string `yaml:"region"`

	// Bucket holds every workspace as a key prefix (MinIO backend only).
	Bucket string `yaml:"bucket"`
}

// DefaultConfig returns a local-directory config rooted at "__apps__".
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendLocal,
		Root:    "__apps__",
		Bucket:  "tablesmith-workspaces",
	}
}

// Validate checks the fields the selected backend needs.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendLocal:
		if c.Root == "" {
			return fmt.Errorf("workspace root is required for the local backend")
		}
	case BackendMinIO:
		if c.Endpoint == "" || c.Bucket == "" {
			return fmt.Errorf("workspace endpoint and bucket are required for the minio backend")
		}
	default:
		return fmt.Errorf("unsupported workspace backend %q", c.Backend)
	}
	return nil
}

// CleanName validates a workspace or file name and returns it in
// slash-separated clean form. Absolute paths and ".." segments are rejected
// so that names never escape their workspace.
func CleanName(name string) (string, error) {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return "", fmt.Errorf("invalid workspace path %q", name)
	}
	cleaned := path.Clean(name)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("invalid workspace path %q", name)
	}
	return cleaned, nil
}
