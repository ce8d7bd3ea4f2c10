// Package artifacts handles the pipeline graph dumps written by peers:
// stale ones are removed before a run and fresh ones are rendered after it.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/martinjaros/nanotalk2/pkg/lib"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "artifacts")

const (
	// GraphSuffix ends every graph description dumped by the media runtime.
	GraphSuffix   = "-pipeline.dot"
	DefaultFormat = "svg"
)

// Renderer converts graph descriptions into images named <file>.<format>.
type Renderer interface {
	Render(ctx context.Context, format string, files []string) error
}

// DotRenderer renders with the Graphviz dot tool.
type DotRenderer struct {
	// Path defaults to "dot" looked up in PATH.
	Path string
}

func (r DotRenderer) Render(ctx context.Context, format string, files []string) error {
	path := r.Path
	if path == "" {
		path = "dot"
	}
	args := append([]string{"-O", "-T" + format}, files...)
	out, err := exec.CommandContext(ctx, path, args...).CombinedOutput()
	if err != nil {
		if len(out) > 0 {
			return fmt.Errorf("%s: %w: %s", path, err, out)
		}
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// Graphs lists the graph descriptions in dir, sorted.
func Graphs(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*"+GraphSuffix))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Rendered returns the image name for a graph description.
func Rendered(file, format string) string {
	return file + "." + format
}

// Clean removes graph descriptions and rendered graphs left by a previous
// run. A missing directory or no matching files is not an error.
func Clean(dir, format string) error {
	if format == "" {
		format = DefaultFormat
	}
	var removed int
	for _, pattern := range []string{"*" + GraphSuffix, "*" + GraphSuffix + "." + format} {
		files, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return err
		}
		for _, f := range files {
			if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			removed++
		}
	}
	if removed > 0 {
		logger.WithFields(logrus.Fields{"dir": dir, "files": removed}).Info("Removed stale graph artifacts")
	}
	return nil
}

// Result describes a post-processing pass.
type Result struct {
	Rendered []string
}

// PostProcess renders every graph description in dir and deletes the
// descriptions once rendering succeeded. On failure it returns a
// *lib.ArtifactConversionError and leaves the descriptions in place.
func PostProcess(ctx context.Context, dir, format string, renderer Renderer) (*Result, error) {
	if format == "" {
		format = DefaultFormat
	}
	files, err := Graphs(dir)
	if err != nil {
		return nil, &lib.ArtifactConversionError{Err: err}
	}
	if len(files) == 0 {
		logger.WithField("dir", dir).Debug("No pipeline graphs to render")
		return &Result{}, nil
	}

	log := logger.WithFields(logrus.Fields{"dir": dir, "format": format, "graphs": len(files)})
	log.Info("Rendering pipeline graphs")
	if err := renderer.Render(ctx, format, files); err != nil {
		return nil, &lib.ArtifactConversionError{Files: files, Err: err}
	}

	res := &Result{Rendered: make([]string, 0, len(files))}
	for _, f := range files {
		res.Rendered = append(res.Rendered, Rendered(f, format))
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).WithField("file", f).Warn("Failed to remove graph description")
		}
	}
	return res, nil
}
