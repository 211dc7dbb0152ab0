// Package pointcloud loads lidar returns from LAS files, ASCII xyz exports
// and the ZIP archives the survey agency ships them in.
package pointcloud

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/paulmach/orb"
)

// Point is one lidar return in projected metres.
type Point struct {
	X, Y, Z float64
}

// Cloud is an unordered set of returns with its extent.
type Cloud struct {
	Source string
	Points []Point
	Bound  orb.Bound
	MinZ   float64
	MaxZ   float64
}

// NewCloud computes the extent of points.
func NewCloud(source string, points []Point) *Cloud {
	c := &Cloud{Source: source, Points: points}
	if len(points) == 0 {
		return c
	}
	p0 := points[0]
	c.Bound = orb.Bound{Min: orb.Point{p0.X, p0.Y}, Max: orb.Point{p0.X, p0.Y}}
	c.MinZ, c.MaxZ = p0.Z, p0.Z
	for _, p := range points[1:] {
		c.Bound = c.Bound.Extend(orb.Point{p.X, p.Y})
		if p.Z < c.MinZ {
			c.MinZ = p.Z
		}
		if p.Z > c.MaxZ {
			c.MaxZ = p.Z
		}
	}
	return c
}

// InputError is a point-cloud source that cannot be read.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("point cloud %s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

type format int

const (
	formatUnknown format = iota
	formatLAS
	formatXYZ
	formatZIP
)

func formatOf(name string) format {
	switch strings.ToLower(path.Ext(name)) {
	case ".las", ".laz":
		return formatLAS
	case ".xyz", ".txt", ".csv":
		return formatXYZ
	case ".zip":
		return formatZIP
	}
	return formatUnknown
}

// Supported reports whether Open understands the file name's extension.
func Supported(name string) bool {
	return formatOf(name) != formatUnknown
}

// Reader opens point clouds and hands LAZ data to its Decompressor.
type Reader struct {
	// Decompressor turns LAZ into LAS. A nil Decompressor rejects LAZ
	// input with ErrCompressed.
	Decompressor Decompressor
}

// DefaultReader decompresses LAZ with laszip or pdal from PATH.
var DefaultReader = &Reader{Decompressor: ExecDecompressor{}}

// Open loads every point of the file at p with DefaultReader.
func Open(p string) (*Cloud, error) {
	return DefaultReader.Open(context.Background(), p)
}

// Open loads every point of the file at p. LAZ data, bare or inside a
// ZIP, is decompressed to a temporary LAS file first.
func (rd *Reader) Open(ctx context.Context, p string) (*Cloud, error) {
	switch formatOf(p) {
	case formatZIP:
		return rd.openZIP(ctx, p)
	case formatUnknown:
		return nil, &InputError{Path: p, Err: fmt.Errorf("unsupported file type %q", filepath.Ext(p))}
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, &InputError{Path: p, Err: err}
	}
	c, err := read(p, f)
	f.Close()
	if errors.Is(err, ErrCompressed) {
		return rd.inflate(ctx, p, func(string) (string, error) { return p, nil })
	}
	return c, err
}

func read(name string, r io.Reader) (*Cloud, error) {
	var (
		points []Point
		err    error
	)
	switch formatOf(name) {
	case formatLAS:
		points, _, err = ReadLAS(r)
	case formatXYZ:
		points, err = ReadXYZ(r)
	default:
		err = fmt.Errorf("unsupported file type %q", path.Ext(name))
	}
	if err != nil {
		return nil, &InputError{Path: name, Err: err}
	}
	return NewCloud(name, points), nil
}

// openZIP reads the first point-cloud member of the archive.
func (rd *Reader) openZIP(ctx context.Context, p string) (*Cloud, error) {
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, &InputError{Path: p, Err: err}
	}
	defer zr.Close()

	files := make([]*zip.File, 0, len(zr.File))
	for _, zf := range zr.File {
		base := path.Base(zf.Name)
		if strings.HasPrefix(base, ".") || strings.HasPrefix(zf.Name, "__MACOSX/") {
			continue
		}
		if f := formatOf(base); f == formatLAS || f == formatXYZ {
			files = append(files, zf)
		}
	}
	if len(files) == 0 {
		return nil, &InputError{Path: p, Err: fmt.Errorf("archive holds no point cloud")}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	zf := files[0]
	name := p + "!" + zf.Name
	rc, err := zf.Open()
	if err != nil {
		return nil, &InputError{Path: p, Err: err}
	}
	c, err := read(name, rc)
	rc.Close()
	if errors.Is(err, ErrCompressed) {
		return rd.inflate(ctx, name, func(dir string) (string, error) {
			return extract(zf, filepath.Join(dir, path.Base(zf.Name)))
		})
	}
	return c, err
}

// extract copies a ZIP member to dst.
func extract(zf *zip.File, dst string) (string, error) {
	rc, err := zf.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return "", err
	}
	return dst, out.Close()
}

// inflate decompresses the LAZ file that stage places (or finds) on disk
// and decodes the resulting LAS. Temporary files are removed afterwards.
func (rd *Reader) inflate(ctx context.Context, name string, stage func(dir string) (string, error)) (*Cloud, error) {
	if rd.Decompressor == nil {
		return nil, &InputError{Path: name, Err: fmt.Errorf("%w: no decompressor configured", ErrCompressed)}
	}
	dir, err := os.MkdirTemp("", "windtiler-laz-")
	if err != nil {
		return nil, &InputError{Path: name, Err: err}
	}
	defer os.RemoveAll(dir)

	src, err := stage(dir)
	if err != nil {
		return nil, &InputError{Path: name, Err: err}
	}
	dst := filepath.Join(dir, "decompressed.las")
	if err := rd.Decompressor.Decompress(ctx, src, dst); err != nil {
		return nil, &InputError{Path: name, Err: err}
	}

	f, err := os.Open(dst)
	if err != nil {
		return nil, &InputError{Path: name, Err: fmt.Errorf("decompressed output: %w", err)}
	}
	defer f.Close()
	points, _, err := ReadLAS(f)
	if errors.Is(err, ErrCompressed) {
		err = errors.New("decompressed output is still LAZ")
	}
	if err != nil {
		return nil, &InputError{Path: name, Err: err}
	}
	return NewCloud(name, points), nil
}
