package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const dayLayout = "2006-01-02"

// DailyFile is a zapcore.WriteSyncer that keeps one file per calendar day.
type DailyFile struct {
	mu   sync.Mutex
	dir  string
	base string
	day  string
	file *os.File
	now  func() time.Time
}

func NewDailyFile(dir, base string) (*DailyFile, error) {
	if dir == "" {
		dir = "."
	}
	if base == "" {
		base = "bpmatch"
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	return &DailyFile{dir: dir, base: base, now: time.Now}, nil
}

// Path returns the file name used for the given day.
func (d *DailyFile) Path(t time.Time) string {
	return filepath.Join(d.dir, fmt.Sprintf("%s_%s.log", d.base, t.Format(dayLayout)))
}

func (d *DailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if day := now.Format(dayLayout); day != d.day || d.file == nil {
		if d.file != nil {
			_ = d.file.Close()
		}

		f, err := os.OpenFile(d.Path(now), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			d.file = nil
			return 0, fmt.Errorf("open daily log: %w", err)
		}
		d.file = f
		d.day = day
	}

	return d.file.Write(p)
}

func (d *DailyFile) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return nil
	}
	return d.file.Sync()
}

func (d *DailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}
