// Package take loads and saves blendshape takes.
//
// Two file formats are understood:
//
//   - JSON, either an object {"fps": 60, "frames": [[...], ...]} or a bare
//     array of frames.
//   - CSV in the LiveLink Face recording layout: a Timecode column, a
//     BlendShapeCount column, then one column per named channel.
package take

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MrWong99/facestream/pkg/face"
	"github.com/MrWong99/facestream/pkg/face/livelink"
)

// ErrEmptyTake is returned when a file contains no frames.
var ErrEmptyTake = errors.New("take: no frames")

// Load reads a take from path, choosing the format by extension (.json or
// .csv). fallbackFPS is used when the file does not carry a frame rate.
func Load(path string, fallbackFPS int) (face.Take, error) {
	f, err := os.Open(path)
	if err != nil {
		return face.Take{}, fmt.Errorf("take: open %q: %w", path, err)
	}
	defer f.Close()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return ReadJSON(f, fallbackFPS)
	case ".csv":
		return ReadCSV(f, fallbackFPS)
	default:
		return face.Take{}, fmt.Errorf("take: unsupported file extension %q", ext)
	}
}

type jsonTake struct {
	FPS    int              `json:"fps"`
	Frames face.RawSequence `json:"frames"`
}

// ReadJSON decodes a JSON take.
func ReadJSON(r io.Reader, fallbackFPS int) (face.Take, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return face.Take{}, fmt.Errorf("take: read json: %w", err)
	}

	var jt jsonTake
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		err = json.Unmarshal(data, &jt.Frames)
	} else {
		err = json.Unmarshal(data, &jt)
	}
	if err != nil {
		return face.Take{}, fmt.Errorf("take: decode json: %w", err)
	}
	if len(jt.Frames) == 0 {
		return face.Take{}, ErrEmptyTake
	}
	if jt.FPS <= 0 {
		jt.FPS = fallbackFPS
	}
	return face.Take{FPS: jt.FPS, Frames: jt.Frames}, nil
}

// WriteJSON encodes take in the object form read by [ReadJSON].
func WriteJSON(w io.Writer, t face.Take) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(jsonTake{FPS: t.FPS, Frames: t.Frames}); err != nil {
		return fmt.Errorf("take: encode json: %w", err)
	}
	return nil
}

// Fixed leading columns of a LiveLink Face CSV recording.
const (
	colTimecode   = "Timecode"
	colShapeCount = "BlendShapeCount"
)

// ReadCSV decodes a LiveLink Face CSV recording. Columns are matched to
// channels by name; unknown columns are ignored and channels without a column
// stay at zero. Recordings carry no frame rate, so fps is used as given.
func ReadCSV(r io.Reader, fps int) (face.Take, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return face.Take{}, fmt.Errorf("take: read csv header: %w", err)
	}

	// column index -> channel index
	cols := make(map[int]int, len(header))
	for i, name := range header {
		if ch, ok := livelink.ChannelIndex(strings.TrimSpace(name)); ok && ch < face.MaxChannels {
			cols[i] = ch
		}
	}
	if len(cols) == 0 {
		return face.Take{}, fmt.Errorf("take: csv header has no known channel columns")
	}

	var frames face.RawSequence
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return face.Take{}, fmt.Errorf("take: read csv line %d: %w", line, err)
		}
		frame := make(face.RawFrame, face.MaxChannels)
		for col, ch := range cols {
			if col >= len(rec) {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[col]), 64)
			if err != nil {
				return face.Take{}, fmt.Errorf("take: csv line %d column %s: %w", line, header[col], err)
			}
			frame[ch] = v
		}
		frames = append(frames, frame)
	}
	if len(frames) == 0 {
		return face.Take{}, ErrEmptyTake
	}
	return face.Take{FPS: fps, Frames: frames}, nil
}

// WriteCSV encodes take in the LiveLink Face CSV layout with one column per
// consumed channel. Timecodes start at 00:00:00:00 and advance at take.FPS.
func WriteCSV(w io.Writer, t face.Take) error {
	if t.FPS <= 0 {
		return fmt.Errorf("take: write csv: invalid fps %d", t.FPS)
	}
	cw := csv.NewWriter(w)

	header := make([]string, 0, 2+face.MaxChannels)
	header = append(header, colTimecode, colShapeCount)
	for i := range face.MaxChannels {
		header = append(header, livelink.ChannelName(i))
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("take: write csv header: %w", err)
	}

	rec := make([]string, len(header))
	count := strconv.Itoa(face.MaxChannels)
	for k, frame := range t.Frames {
		rec[0] = Timecode(k, t.FPS)
		rec[1] = count
		for i := range face.MaxChannels {
			v := 0.0
			if i < len(frame) {
				v = frame[i]
			}
			rec[2+i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("take: write csv frame %d: %w", k, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("take: write csv: %w", err)
	}
	return nil
}

// Timecode formats frame index k at fps as HH:MM:SS:FF.mmm, the layout used
// by LiveLink Face recordings. The fractional part is always zero for whole
// frames. A non-positive fps or negative k yields the zero timecode.
func Timecode(k, fps int) string {
	if fps <= 0 || k < 0 {
		return "00:00:00:00.000"
	}
	secs := k / fps
	ff := k % fps
	h, m, s := secs/3600, (secs/60)%60, secs%60
	return fmt.Sprintf("%02d:%02d:%02d:%02d.000", h, m, s, ff)
}

// Validate reports frames containing non-finite values. Such frames are
// still playable; the encoder keeps the previous value for the bad channels.
func Validate(t face.Take) error {
	var errs []error
	for k, frame := range t.Frames {
		for i, v := range frame {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				errs = append(errs, fmt.Errorf("frame %d channel %d: non-finite value %v", k, i, v))
			}
		}
	}
	return errors.Join(errs...)
}
