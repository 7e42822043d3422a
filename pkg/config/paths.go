package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutputPathUnsafe reports an output directory containing path
// traversal components. Callers fall back to SafeOutputDir and warn
// instead of failing.
var ErrOutputPathUnsafe = errors.New("output path contains traversal components")

// PathsConfig locates the directories the pipeline reads and writes.
// All values support a leading "~" for the user home directory.
type PathsConfig struct {
	// SharedDir is the root under which the other directories default.
	// Default: ~/.harvest/shared
	SharedDir string `yaml:"shared_dir,omitempty"`

	// OutputDir receives generated program files.
	// Default: <shared_dir>/output
	OutputDir string `yaml:"output_dir,omitempty"`

	// TempDir holds intermediate artifacts. Default: <shared_dir>/tmp
	TempDir string `yaml:"temp_dir,omitempty"`

	// CookiesDir holds captured cookie files. Default: <shared_dir>/cookies
	CookiesDir string `yaml:"cookies_dir,omitempty"`

	// ScreenshotsDir holds capture screenshots.
	// Default: <shared_dir>/screenshots
	ScreenshotsDir string `yaml:"screenshots_dir,omitempty"`

	// HarDir holds HAR capture files. Default: <shared_dir>/har
	HarDir string `yaml:"har_dir,omitempty"`
}

func (c *PathsConfig) SetDefaults() {
	if c.SharedDir == "" {
		c.SharedDir = filepath.Join("~", ".harvest", "shared")
	}
	if c.OutputDir == "" {
		c.OutputDir = filepath.Join(c.SharedDir, "output")
	}
	if c.TempDir == "" {
		c.TempDir = filepath.Join(c.SharedDir, "tmp")
	}
	if c.CookiesDir == "" {
		c.CookiesDir = filepath.Join(c.SharedDir, "cookies")
	}
	if c.ScreenshotsDir == "" {
		c.ScreenshotsDir = filepath.Join(c.SharedDir, "screenshots")
	}
	if c.HarDir == "" {
		c.HarDir = filepath.Join(c.SharedDir, "har")
	}

	c.SharedDir = ExpandHome(c.SharedDir)
	c.OutputDir = ExpandHome(c.OutputDir)
	c.TempDir = ExpandHome(c.TempDir)
	c.CookiesDir = ExpandHome(c.CookiesDir)
	c.ScreenshotsDir = ExpandHome(c.ScreenshotsDir)
	c.HarDir = ExpandHome(c.HarDir)
}

func (c *PathsConfig) Validate() error {
	// Traversal in the output path is not a validation failure: the
	// emitter falls back to SafeOutputDir at write time and warns.
	return nil
}

// ExpandHome replaces a leading "~" with the user home directory. The
// path is returned unchanged when the home directory cannot be
// resolved.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	if len(path) > 1 && path[1] != '/' && path[1] != filepath.Separator {
		// "~user" form is not supported.
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if len(path) == 1 {
		return home
	}
	return filepath.Join(home, path[2:])
}

// CheckOutputDir rejects directories with traversal components.
func CheckOutputDir(dir string) error {
	for _, part := range strings.Split(filepath.ToSlash(dir), "/") {
		if part == ".." {
			return fmt.Errorf("%w: %s", ErrOutputPathUnsafe, dir)
		}
	}
	return nil
}

// SafeOutputDir is the fallback used when the configured output
// directory is unsafe or not writable.
func SafeOutputDir() string {
	return filepath.Join(os.TempDir(), "harvest-output")
}

// ResolveOutputDir validates the configured output directory and
// ensures it exists, falling back to SafeOutputDir when the
// configuration is unsafe or unwritable. The returned error is nil on
// fallback; fellback reports that the fallback was taken so the caller
// can warn.
func (c *PathsConfig) ResolveOutputDir() (dir string, fellback bool, err error) {
	dir = c.OutputDir

	if checkErr := CheckOutputDir(dir); checkErr != nil {
		dir = SafeOutputDir()
		fellback = true
	}

	if mkErr := os.MkdirAll(dir, 0755); mkErr != nil {
		if fellback {
			// Even the fallback failed; nothing safe left to try.
			return "", true, mkErr
		}
		dir = SafeOutputDir()
		fellback = true
		if mkErr := os.MkdirAll(dir, 0755); mkErr != nil {
			return "", true, mkErr
		}
	}

	return dir, fellback, nil
}
