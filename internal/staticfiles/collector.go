// Package staticfiles rebuilds the served static directory on every start:
// the output root is cleared and repopulated from the configured source
// roots, so stale assets from previous releases never survive.
package staticfiles

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ManifestName is written into the output root when manifests are enabled.
const ManifestName = "staticfiles.json"

// Collector copies static assets from Sources into Root. Sources are scanned
// in order and the first occurrence of a relative path wins, so app-level
// assets can override shared ones.
type Collector struct {
	Sources  []string
	Root     string
	Manifest bool
}

// Result summarizes a collection run.
type Result struct {
	Files int
	Bytes int64
}

type manifest struct {
	Version string            `json:"version"`
	Hashes  map[string]string `json:"hashes"`
}

// Collect clears the output root and repopulates it.
func (c *Collector) Collect(ctx context.Context) (*Result, error) {
	root, err := c.checkRoot()
	if err != nil {
		return nil, err
	}
	if err := os.RemoveAll(root); err != nil {
		return nil, fmt.Errorf("clear output root: %w", err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create output root: %w", err)
	}

	res := &Result{}
	seen := map[string]bool{}
	hashes := map[string]string{}
	for _, src := range c.Sources {
		err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			name := d.Name()
			if strings.HasPrefix(name, ".") && path != src {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(src, path)
			if err != nil {
				return err
			}
			if seen[rel] {
				return nil
			}
			seen[rel] = true
			n, sum, err := copyFile(path, filepath.Join(root, rel), c.Manifest)
			if err != nil {
				return fmt.Errorf("collect %s: %w", rel, err)
			}
			if c.Manifest {
				hashes[filepath.ToSlash(rel)] = sum
			}
			res.Files++
			res.Bytes += n
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", src, err)
		}
	}

	if c.Manifest {
		if err := writeManifest(root, hashes); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// checkRoot refuses roots that would make the clear step destructive far
// beyond the static directory.
func (c *Collector) checkRoot() (string, error) {
	if c.Root == "" {
		return "", fmt.Errorf("static root not configured")
	}
	root := filepath.Clean(c.Root)
	if root == "/" || root == "." || root == filepath.Dir(root) {
		return "", fmt.Errorf("refusing to clear static root %q", c.Root)
	}
	return root, nil
}

func copyFile(src, dst string, hash bool) (int64, string, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, "", err
	}
	in, err := os.Open(src)
	if err != nil {
		return 0, "", err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return 0, "", err
	}
	defer out.Close()

	var n int64
	sum := ""
	if hash {
		h := sha256.New()
		n, err = io.Copy(io.MultiWriter(out, h), in)
		sum = hex.EncodeToString(h.Sum(nil))[:12]
	} else {
		n, err = io.Copy(out, in)
	}
	if err != nil {
		return 0, "", err
	}
	if info, serr := os.Stat(src); serr == nil {
		_ = os.Chmod(dst, info.Mode().Perm())
	}
	return n, sum, nil
}

func writeManifest(root string, hashes map[string]string) error {
	data, err := json.MarshalIndent(manifest{Version: "1.0", Hashes: hashes}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, ManifestName), data, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
