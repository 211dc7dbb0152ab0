package pointcloud

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadXYZ parses ASCII returns, one "x y z" triple per line. Fields may be
// separated by whitespace, commas or semicolons; extra columns are
// ignored, as are blank lines, '#' comments and a non-numeric header line.
func ReadXYZ(r io.Reader) ([]Point, error) {
	var points []Point

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ' ' || r == '\t' || r == ',' || r == ';'
		})
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: want x y z, got %q", n, line)
		}

		var v [3]float64
		var err error
		for i := range v {
			if v[i], err = strconv.ParseFloat(fields[i], 64); err != nil {
				break
			}
		}
		if err != nil {
			if n == 1 && len(points) == 0 {
				continue // column header
			}
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		points = append(points, Point{X: v[0], Y: v[1], Z: v[2]})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return points, nil
}
