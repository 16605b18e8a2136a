// Command mkuimg builds a bootable disk image: it packs the init
// program (and any additional user binaries) into a block-aligned
// blob a block device can serve to cmd/kernel, patching each binary's
// ELF entry point along the way. Ground: biscuit's mkfs.go (host tool
// that assembles a disk image from a bootimage/kernel/skeleton
// directory) and kernel/chentry.go (entry-point patcher); this tool
// folds chentry's single-binary patch into mkfs's multi-input image
// assembly, since this kernel's block-device contract has no
// filesystem of its own to walk a skeleton directory into.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/mod/semver"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"rvkernel/internal/board"
)

func main() {
	manifestPath := flag.String("manifest", "", "path to the build manifest (YAML)")
	flag.Parse()
	if *manifestPath == "" {
		log.Fatal("mkuimg: -manifest is required")
	}

	m, err := LoadManifest(*manifestPath)
	if err != nil {
		log.Fatal(err)
	}

	b, err := resolveBoard(m)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("mkuimg: targeting board %s (phys_top=%#x)", b.Name, b.PhysTop)

	version := stampVersion(m.KernelVersion)
	log.Printf("mkuimg: kernel_version %s", version)

	entries := append([]AppEntry{{Path: m.Init}}, m.Apps...)
	blobs, err := packBinaries(entries)
	if err != nil {
		log.Fatal(err)
	}

	if err := stageAndWrite(m.Output, blobs, m.BlockSize); err != nil {
		log.Fatal(err)
	}
	log.Printf("mkuimg: wrote %s (%d binaries, %d-byte blocks)", m.Output, len(blobs), m.BlockSize)
}

// resolveBoard loads the board manifest if the build manifest names
// one, falling back to a plain name lookup otherwise.
func resolveBoard(m *Manifest) (board.Board, error) {
	if m.BoardManifest != "" {
		return board.Load(m.BoardManifest)
	}
	return board.ByName(m.Board)
}

// stampVersion validates kernel_version as a semantic version and
// returns its canonical form; an empty field stamps "v0.0.0" rather
// than failing the build, since a development image need not carry a
// real release tag.
func stampVersion(v string) string {
	if v == "" {
		return "v0.0.0"
	}
	if !semver.IsValid(v) {
		log.Fatalf("mkuimg: kernel_version %q is not a valid semantic version", v)
	}
	return semver.Canonical(v)
}

// packBinaries reads and entry-patches every named binary concurrently
// — one goroutine per binary, as SPEC_FULL's DOMAIN STACK section
// describes — and returns their patched bytes in manifest order.
func packBinaries(entries []AppEntry) ([][]byte, error) {
	out := make([][]byte, len(entries))
	var g errgroup.Group
	for i, e := range entries {
		g.Go(func() error {
			data, err := os.ReadFile(e.Path)
			if err != nil {
				return fmt.Errorf("mkuimg: reading %s: %w", e.Path, err)
			}
			if e.Entry != 0 {
				data, err = patchEntry(data, e.Entry)
				if err != nil {
					return fmt.Errorf("mkuimg: patching %s: %w", e.Path, err)
				}
			} else {
				f, ferr := elfHeaderOf(data)
				if ferr != nil {
					return fmt.Errorf("mkuimg: reading %s: %w", e.Path, ferr)
				}
				if err := chkELF(f); err != nil {
					return fmt.Errorf("mkuimg: %s: %w", e.Path, err)
				}
			}
			out[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// stageAndWrite concatenates blobs, each padded up to a whole number
// of blocks (internal/blockdev's contract has no length header of its
// own, and cmd/kernel's readWholeDevice reads whole blocks only; it loads
// the entire device as one ELF image and does not look for the end of
// each binary), and writes the result to output. A sibling FIFO is
// created and removed around the write as a single-writer staging
// lock, the same "build tool coordinates through a file in the
// filesystem" idiom biscuit's ufs.MkDisk uses a plain output path for,
// adapted here to exercise golang.org/x/sys/unix's Mkfifo.
func stageAndWrite(output string, blobs [][]byte, blockSize int) error {
	lockPath := output + ".lock"
	if err := unix.Mkfifo(lockPath, 0o600); err != nil && !os.IsExist(err) {
		return fmt.Errorf("mkuimg: creating staging lock %s: %w", lockPath, err)
	}
	defer os.Remove(lockPath)

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("mkuimg: creating output directory: %w", err)
	}

	var image []byte
	for _, b := range blobs {
		image = append(image, padToBlock(b, blockSize)...)
	}
	if err := os.WriteFile(output, image, 0o644); err != nil {
		return fmt.Errorf("mkuimg: writing %s: %w", output, err)
	}
	return nil
}

// padToBlock appends zero bytes until len(data) is a multiple of
// blockSize.
func padToBlock(data []byte, blockSize int) []byte {
	rem := len(data) % blockSize
	if rem == 0 {
		return data
	}
	return append(data, make([]byte, blockSize-rem)...)
}
