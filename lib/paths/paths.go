// Package paths centralizes the on-disk layout under the data directory.
//
//	{dataDir}/
//	  staging/     reserved staging root, recreated on every run
//	  downloads/   scratch files for layer blobs while they are verified
package paths

import "path/filepath"

// Paths provides typed path construction for the data directory.
type Paths struct {
	dataDir string
}

// New creates a Paths rooted at dataDir.
func New(dataDir string) *Paths {
	return &Paths{dataDir: dataDir}
}

// DataDir returns the root data directory.
func (p *Paths) DataDir() string {
	return p.dataDir
}

// Staging returns the reserved staging root path.
func (p *Paths) Staging() string {
	return filepath.Join(p.dataDir, "staging")
}

// Downloads returns the directory for in-flight layer blobs.
func (p *Paths) Downloads() string {
	return filepath.Join(p.dataDir, "downloads")
}
