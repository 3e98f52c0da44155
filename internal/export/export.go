// Sessionrec - Event Session Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sessionrec

// Package export writes run results to timestamped JSON and CSV files.
//
// Treatment visitors go to recommendations_<timestamp>.{json,csv}. When the
// control group is enabled, control visitors go to files with a _control
// suffix so offline analysis can compare both arms.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/sessionrec/internal/recommend"
)

// TimestampFormat is the layout used in export file names.
const TimestampFormat = "20060102_150405"

// Config selects the export formats.
type Config struct {
	Dir  string
	JSON bool
	CSV  bool
}

// Exporter implements recommend.Exporter.
type Exporter struct {
	cfg    Config
	now    func() time.Time
	logger zerolog.Logger
}

var _ recommend.Exporter = (*Exporter)(nil)

// New creates an exporter writing into cfg.Dir.
//
//nolint:gocritic // logger passed by value is acceptable for zerolog
func New(cfg Config, logger zerolog.Logger) *Exporter {
	return &Exporter{
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With().Str("component", "export").Logger(),
	}
}

type exportGroup struct {
	name    string
	suffix  string
	results []*recommend.VisitorResult
}

// Export writes the enabled formats and returns the created paths.
func (x *Exporter) Export(ctx context.Context, result *recommend.RunResult, overlaps recommend.OverlapIndex) ([]string, error) {
	if !x.cfg.JSON && !x.cfg.CSV {
		return nil, nil
	}
	if err := os.MkdirAll(x.cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}

	generatedAt := x.now().UTC()
	base := "recommendations_" + generatedAt.Format(TimestampFormat)

	groups := []exportGroup{{groupTreatment, "", result.Treatment()}}
	if result.Config.ControlGroup.Enabled {
		groups = append(groups, exportGroup{groupControl, "_control", result.Control()})
	}

	var files []string
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return files, err
		}
		if x.cfg.JSON {
			path := filepath.Join(x.cfg.Dir, base+g.suffix+".json")
			doc := buildDocument(result, g.name, g.results, generatedAt)
			if err := writeFile(path, func(f *os.File) error { return writeJSON(f, doc) }); err != nil {
				return files, err
			}
			files = append(files, path)
		}
		if x.cfg.CSV {
			path := filepath.Join(x.cfg.Dir, base+g.suffix+".csv")
			if err := writeFile(path, func(f *os.File) error { return writeCSV(f, g.results, overlaps) }); err != nil {
				return files, err
			}
			files = append(files, path)
		}
		x.logger.Debug().Str("group", g.name).Int("visitors", len(g.results)).Msg("Export group written")
	}
	return files, nil
}

// writeFile writes through a temporary file and renames it into place so a
// reader never sees a partial export.
func writeFile(path string, write func(*os.File) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
