package chart

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/JonMunkholm/excessdeaths/internal/logging"
	"github.com/JonMunkholm/excessdeaths/internal/report"
)

// FileRenderer writes each chart as a PNG file under Dir:
// <country>_timeseries.png and <country>_regression.png. When two countries
// reduce to the same file stem, the later one gets a hash suffix.
type FileRenderer struct {
	dir string
	gen *Generator

	mu     sync.Mutex
	owners map[string]string // file stem -> country
}

// NewFileRenderer creates dir if needed and returns a renderer writing to it.
func NewFileRenderer(dir string) (*FileRenderer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("chart dir: %w", err)
	}
	gen, err := NewGenerator(DefaultStyle())
	if err != nil {
		return nil, err
	}
	return &FileRenderer{dir: dir, gen: gen, owners: make(map[string]string)}, nil
}

// RenderTimeSeries implements report.Renderer.
func (r *FileRenderer) RenderTimeSeries(ctx context.Context, c report.TimeSeriesChart) error {
	png, err := r.gen.TimeSeriesPNG(c)
	if err != nil {
		return err
	}
	return r.write(ctx, c.Country, "timeseries", png)
}

// RenderRegression implements report.Renderer.
func (r *FileRenderer) RenderRegression(ctx context.Context, c report.RegressionChart) error {
	png, err := r.gen.RegressionPNG(c)
	if err != nil {
		return err
	}
	return r.write(ctx, c.Country, "regression", png)
}

func (r *FileRenderer) write(ctx context.Context, country, kind string, png []byte) error {
	path := filepath.Join(r.dir, r.FileName(country, kind))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return fmt.Errorf("write chart: %w", err)
	}
	logging.WithFields(ctx, "country", country).Info("chart written", "path", path)
	return nil
}

// FileName returns the PNG file name for a country's chart of the given kind.
// Anything but letters and digits becomes an underscore. A country whose name
// reduces to a stem already used by another country gets a hash suffix.
func (r *FileRenderer) FileName(country, kind string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	stem := slug(country)
	if owner, ok := r.owners[stem]; ok && owner != country {
		stem = fmt.Sprintf("%s_%08x", stem, nameHash(country))
	}
	r.owners[stem] = country
	return fmt.Sprintf("%s_%s.png", stem, kind)
}

func slug(country string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, country)
}

func nameHash(country string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(country))
	return h.Sum32()
}
