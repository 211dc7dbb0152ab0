// Package monitor reports pipeline progress from what the stages leave on
// disk. It never modifies anything.
package monitor

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"windtiler/internal/progresslog"
)

// ArchivePatterns are the raw point-cloud files counted as downloaded.
var ArchivePatterns = []string{"*.zip", "*.laz", "*.las"}

type Config struct {
	ArchiveDir  string
	TilesDir    string
	ProgressLog string
	// Expected is the number of tiles the run should end with; 0 means
	// unknown.
	Expected int
	Interval time.Duration
}

// Status is one snapshot of the pipeline.
type Status struct {
	Time         time.Time
	Expected     int
	Archives     int
	ArchiveBytes int64
	RawTiles     int
	GzipTiles    int
	TileBytes    int64
	Conversion   *progresslog.Progress
}

type Monitor struct {
	cfg Config
	log logrus.FieldLogger
	now func() time.Time
}

func New(cfg Config, log logrus.FieldLogger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	return &Monitor{cfg: cfg, log: log, now: time.Now}
}

// Collect takes a snapshot. Missing directories and logs count as empty.
func (m *Monitor) Collect() Status {
	st := Status{Time: m.now(), Expected: m.cfg.Expected}

	for _, p := range ArchivePatterns {
		st.Archives += count(m.cfg.ArchiveDir, p)
	}
	st.ArchiveBytes = m.dirSize(m.cfg.ArchiveDir)
	st.RawTiles = count(m.cfg.TilesDir, "*.bin")
	st.GzipTiles = count(m.cfg.TilesDir, "*.bin.gz")
	st.TileBytes = m.dirSize(m.cfg.TilesDir)

	if m.cfg.ProgressLog != "" {
		p, ok, err := progresslog.ParseFile(m.cfg.ProgressLog)
		switch {
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			m.log.Debugf("read progress log: %v", err)
		case ok:
			st.Conversion = &p
		}
	}
	return st
}

func count(dir, pattern string) int {
	if dir == "" {
		return 0
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return 0
	}
	return len(matches)
}

func (m *Monitor) dirSize(dir string) int64 {
	if dir == "" {
		return 0
	}
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			if fi, err := d.Info(); err == nil {
				total += fi.Size()
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.log.Debugf("size of %s: %v", dir, err)
	}
	return total
}

// Watch re-renders the dashboard every interval until ctx is done.
func (m *Monitor) Watch(ctx context.Context, w io.Writer) error {
	for {
		if err := RenderScreen(w, m.Collect()); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(m.cfg.Interval):
		}
	}
}
