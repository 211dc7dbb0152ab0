package raster

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"windtiler/internal/tileid"
)

// GzipExt is appended to the raw file name for the compressed copy.
const GzipExt = ".gz"

// Store writes encoded grids as tile_{x}_{y}.bin and tile_{x}_{y}.bin.gz.
type Store struct {
	Dir string
}

// Paths returns the raw and compressed file paths of id.
func (s Store) Paths(id tileid.ID) (raw, gz string) {
	raw = filepath.Join(s.Dir, id.FileName())
	return raw, raw + GzipExt
}

// Compress gzips data. The gzip header carries no name or timestamp, so
// equal input always gives equal output.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write persists data and its gzip copy. Each file is written to a
// temporary name first and renamed into place.
func (s Store) Write(id tileid.ID, data []byte) (rawBytes, gzBytes int64, err error) {
	if err := os.MkdirAll(s.Dir, os.ModePerm); err != nil {
		return 0, 0, err
	}
	gz, err := Compress(data)
	if err != nil {
		return 0, 0, err
	}

	rawPath, gzPath := s.Paths(id)
	if err := writeFile(rawPath, data); err != nil {
		return 0, 0, err
	}
	if err := writeFile(gzPath, gz); err != nil {
		return int64(len(data)), 0, err
	}
	return int64(len(data)), int64(len(gz)), nil
}

func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
