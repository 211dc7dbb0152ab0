package pointcloud

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Decompressor converts the LAZ file src into an uncompressed LAS file dst.
type Decompressor interface {
	Decompress(ctx context.Context, src, dst string) error
}

// Tool is an external LAZ decompressor invoked as a subprocess.
type Tool struct {
	Name string
	Args func(src, dst string) []string
}

var (
	LASzip = Tool{Name: "laszip", Args: func(src, dst string) []string {
		return []string{"-i", src, "-o", dst}
	}}
	PDAL = Tool{Name: "pdal", Args: func(src, dst string) []string {
		return []string{"translate", src, dst}
	}}
)

// ExecDecompressor runs the first of Tools found on PATH; laszip, then
// pdal, when Tools is empty.
type ExecDecompressor struct {
	Tools []Tool
}

func (d ExecDecompressor) tools() []Tool {
	if len(d.Tools) == 0 {
		return []Tool{LASzip, PDAL}
	}
	return d.Tools
}

func (d ExecDecompressor) Decompress(ctx context.Context, src, dst string) error {
	var names []string
	for _, t := range d.tools() {
		bin, err := exec.LookPath(t.Name)
		if err != nil {
			names = append(names, t.Name)
			continue
		}
		out, err := exec.CommandContext(ctx, bin, t.Args(src, dst)...).CombinedOutput()
		if err != nil {
			return fmt.Errorf("%s: %w: %s", t.Name, err, bytes.TrimSpace(out))
		}
		return nil
	}
	return fmt.Errorf("%w: install %s and make sure it is on PATH", ErrCompressed, strings.Join(names, " or "))
}
