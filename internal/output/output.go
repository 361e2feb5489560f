// Package output reads and writes detection files in the DCASE result format.
//
// Prediction rows are "frame,class,x,y,z" with a Cartesian direction per
// detection. Reference metadata rows are "frame,class,track,azimuth,elevation"
// in degrees and are converted to unit vectors on read.
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/tphakala/seld-go/internal/errors"
)

// Detection is one active class in a frame. Track is only read from
// reference metadata; prediction files carry no track.
type Detection struct {
	Class   int
	Track   int
	X, Y, Z float64
}

// Vec returns the direction as a vector.
func (d Detection) Vec() r3.Vec { return r3.Vec{X: d.X, Y: d.Y, Z: d.Z} }

// Frames maps a frame index to the detections in that frame, in emission order.
type Frames map[int][]Detection

// SortedFrames returns the frame indices in ascending order.
func (f Frames) SortedFrames() []int {
	frames := make([]int, 0, len(f))
	for frame := range f {
		frames = append(frames, frame)
	}
	slices.Sort(frames)
	return frames
}

// WriteDetections writes one row per detection, frames ascending.
func WriteDetections(path string, frames Frames) error {
	file, err := os.Create(path) //nolint:gosec // path built from the output folder
	if err != nil {
		return errors.FileError(fmt.Errorf("output: create %s: %w", path, err), path)
	}

	w := csv.NewWriter(file)
	record := make([]string, 5)
	for _, frame := range frames.SortedFrames() {
		for _, d := range frames[frame] {
			record[0] = strconv.Itoa(frame)
			record[1] = strconv.Itoa(d.Class)
			record[2] = formatFloat(d.X)
			record[3] = formatFloat(d.Y)
			record[4] = formatFloat(d.Z)
			if err := w.Write(record); err != nil {
				file.Close()
				return errors.FileError(fmt.Errorf("output: write %s: %w", path, err), path)
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		file.Close()
		return errors.FileError(fmt.Errorf("output: flush %s: %w", path, err), path)
	}

	if err := file.Close(); err != nil {
		return errors.FileError(fmt.Errorf("output: close %s: %w", path, err), path)
	}
	return nil
}

// ReadDetections reads a file written by WriteDetections.
func ReadDetections(path string) (Frames, error) {
	return readRows(path, func(fields []string) (int, Detection, error) {
		frame, class, err := parseFrameClass(fields)
		if err != nil {
			return 0, Detection{}, err
		}
		var xyz [3]float64
		for i := range xyz {
			if xyz[i], err = strconv.ParseFloat(strings.TrimSpace(fields[2+i]), 64); err != nil {
				return 0, Detection{}, fmt.Errorf("invalid coordinate %q: %w", fields[2+i], err)
			}
		}
		return frame, Detection{Class: class, X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
	})
}

// ReadReference reads reference metadata and converts each polar direction
// to a unit vector.
func ReadReference(path string) (Frames, error) {
	return readRows(path, func(fields []string) (int, Detection, error) {
		frame, class, err := parseFrameClass(fields)
		if err != nil {
			return 0, Detection{}, err
		}
		track, err := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err != nil {
			return 0, Detection{}, fmt.Errorf("invalid track %q: %w", fields[2], err)
		}
		azi, err := strconv.ParseFloat(strings.TrimSpace(fields[3]), 64)
		if err != nil {
			return 0, Detection{}, fmt.Errorf("invalid azimuth %q: %w", fields[3], err)
		}
		ele, err := strconv.ParseFloat(strings.TrimSpace(fields[4]), 64)
		if err != nil {
			return 0, Detection{}, fmt.Errorf("invalid elevation %q: %w", fields[4], err)
		}
		v := PolarToCartesian(azi, ele)
		return frame, Detection{Class: class, Track: track, X: v.X, Y: v.Y, Z: v.Z}, nil
	})
}

// PolarToCartesian converts azimuth and elevation in degrees to a unit vector.
func PolarToCartesian(aziDeg, eleDeg float64) r3.Vec {
	azi := aziDeg * math.Pi / 180
	ele := eleDeg * math.Pi / 180
	return r3.Vec{X: math.Cos(ele) * math.Cos(azi), Y: math.Cos(ele) * math.Sin(azi), Z: math.Sin(ele)}
}

func readRows(path string, parse func([]string) (int, Detection, error)) (Frames, error) {
	file, err := os.Open(path) //nolint:gosec // path from a scanned folder
	if err != nil {
		return nil, errors.FileError(fmt.Errorf("output: open %s: %w", path, err), path)
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = 5
	r.ReuseRecord = true

	frames := Frames{}
	for line := 1; ; line++ {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.DataError(fmt.Errorf("output: read %s: %w", path, err), path)
		}
		frame, d, err := parse(fields)
		if err != nil {
			return nil, errors.New(fmt.Errorf("output: %s line %d: %w", path, line, err)).
				Category(errors.CategoryData).
				FileContext(path).
				Context("line", line).
				Build()
		}
		frames[frame] = append(frames[frame], d)
	}
	return frames, nil
}

func parseFrameClass(fields []string) (frame, class int, err error) {
	if frame, err = strconv.Atoi(strings.TrimSpace(fields[0])); err != nil {
		return 0, 0, fmt.Errorf("invalid frame %q: %w", fields[0], err)
	}
	if class, err = strconv.Atoi(strings.TrimSpace(fields[1])); err != nil {
		return 0, 0, fmt.Errorf("invalid class %q: %w", fields[1], err)
	}
	if frame < 0 || class < 0 {
		return 0, 0, fmt.Errorf("invalid negative frame or class in %v", fields[:2])
	}
	return frame, class, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// DeleteAndCreateFolder removes path with its contents and recreates it empty.
func DeleteAndCreateFolder(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return errors.FileError(fmt.Errorf("output: remove %s: %w", path, err), path)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return errors.FileError(fmt.Errorf("output: create %s: %w", path, err), path)
	}
	return nil
}

// ReplaceExt swaps the extension of name's base for ext, e.g. ".npy" to ".csv".
func ReplaceExt(name, ext string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ext
}
