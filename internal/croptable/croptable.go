// Package croptable reads the tab-separated crop table that maps output
// files to the regions extracted for them.
//
// Each line holds one region:
//
//	X:Y:W:H<TAB>output_file
//
// X,Y is the top-left corner of the region in the source frame, W and H
// its size in pixels. Blank lines and lines starting with '#' are
// skipped.
package croptable

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/visiona/framestream/stream"
)

// ErrMalformedTable is wrapped by every parse failure.
var ErrMalformedTable = errors.New("malformed crop table")

// Parse reads crop regions from r, in file order.
func Parse(r io.Reader) ([]stream.CropRegion, error) {
	var regions []stream.CropRegion
	seen := map[string]int{}

	scanner := bufio.NewScanner(r)
	for lineno := 1; scanner.Scan(); lineno++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		geometry, output, ok := strings.Cut(line, "\t")
		if !ok || strings.TrimSpace(output) == "" {
			return nil, fmt.Errorf("%w: line %d: want GEOMETRY<TAB>OUTPUT, got %q",
				ErrMalformedTable, lineno, line)
		}
		output = strings.TrimSpace(output)

		rect, err := parseGeometry(geometry)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedTable, lineno, err)
		}

		if prev, dup := seen[output]; dup {
			return nil, fmt.Errorf("%w: line %d: output %q already used on line %d",
				ErrMalformedTable, lineno, output, prev)
		}
		seen[output] = lineno

		regions = append(regions, stream.CropRegion{Output: output, Rect: rect})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		return nil, fmt.Errorf("%w: no regions", ErrMalformedTable)
	}
	return regions, nil
}

// Load reads crop regions from the file at path.
func Load(path string) ([]stream.CropRegion, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	regions, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return regions, nil
}

// parseGeometry parses "X:Y:W:H" into a rectangle.
func parseGeometry(s string) (image.Rectangle, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("geometry %q: want X:Y:W:H", s)
	}

	vals := make([]int, 4)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("geometry %q: %v", s, err)
		}
		vals[i] = v
	}

	x, y, w, h := vals[0], vals[1], vals[2], vals[3]
	if x < 0 || y < 0 || w <= 0 || h <= 0 {
		return image.Rectangle{}, fmt.Errorf("geometry %q: origin must be non-negative and size positive", s)
	}
	return image.Rect(x, y, x+w, y+h), nil
}
