package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is the build input cmd/mkuimg consumes: the board the image
// targets, the kernel's own semantic version (validated and logged; the
// image itself has no header), the init program, and any additional user ELF binaries to
// pack alongside it. Ground: biscuit's mkfs takes its inputs as bare
// os.Args (<bootimage> <kernel image> <output image> <skel dir>); this
// tool takes the same shape of inputs but as one declarative file,
// following internal/board's own manifest-over-flags convention.
type Manifest struct {
	Board         string   `yaml:"board"`
	KernelVersion string   `yaml:"kernel_version"`
	BoardManifest string   `yaml:"board_manifest"`
	Init          string   `yaml:"init"`
	Apps          []AppEntry `yaml:"apps"`
	Output        string   `yaml:"output"`
	BlockSize     int      `yaml:"block_size"`
}

// AppEntry names one user ELF binary to pack into the image, with an
// optional entry-point override applied the way kernel/chentry.go
// patches a binary's ELF header in place.
type AppEntry struct {
	Path  string `yaml:"path"`
	Entry uint64 `yaml:"entry,omitempty"`
}

// LoadManifest reads and validates a build manifest.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mkuimg: reading manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("mkuimg: parsing manifest %s: %w", path, err)
	}
	if m.Init == "" {
		return nil, fmt.Errorf("mkuimg: manifest %s names no init binary", path)
	}
	if m.Output == "" {
		return nil, fmt.Errorf("mkuimg: manifest %s names no output image", path)
	}
	if m.BlockSize == 0 {
		m.BlockSize = 512
	}
	return &m, nil
}
