package catalog

import (
	"context"
	"os"
	"path/filepath"
)

// DirProber checks asset existence against a local directory that mirrors the
// asset bucket layout.
type DirProber struct {
	Root string
}

// Probe reports whether the object exists on disk.
func (p DirProber) Probe(_ context.Context, objectPath string) bool {
	info, err := os.Stat(filepath.Join(p.Root, filepath.FromSlash(objectPath)))
	return err == nil && !info.IsDir()
}
