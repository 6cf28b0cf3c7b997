package tracking

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Replay plays back recorded frames, one per Poll.
type Replay struct {
	frames []Frame
	next   int
	loop   bool
}

// NewReplay reads JSON-lines frames from r. Blank lines are skipped.
func NewReplay(r io.Reader, loop bool) (*Replay, error) {
	var frames []Frame
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var f Frame
		if err := json.Unmarshal([]byte(line), &f); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		frames = append(frames, f)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read frames: %w", err)
	}
	return &Replay{frames: frames, loop: loop}, nil
}

// OpenReplay loads a recording from path.
func OpenReplay(path string, loop bool) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()
	return NewReplay(f, loop)
}

// Len returns the number of recorded frames.
func (r *Replay) Len() int {
	return len(r.frames)
}

// Poll returns the next frame. At the end of the recording it wraps around
// when looping and reports no frame otherwise.
func (r *Replay) Poll() (Frame, bool) {
	if r.next >= len(r.frames) {
		if !r.loop || len(r.frames) == 0 {
			return Frame{}, false
		}
		r.next = 0
	}
	f := r.frames[r.next]
	r.next++
	return f, true
}

// Recorder writes frames in the format NewReplay reads.
type Recorder struct {
	enc *json.Encoder
}

// NewRecorder returns a Recorder writing to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{enc: json.NewEncoder(w)}
}

// Record appends one frame.
func (r *Recorder) Record(f Frame) error {
	return r.enc.Encode(f)
}

// Recording wraps a Source and records every fresh frame it returns.
type Recording struct {
	src Source
	rec *Recorder
	err error
}

// NewRecording records the frames of src to w.
func NewRecording(src Source, w io.Writer) *Recording {
	return &Recording{src: src, rec: NewRecorder(w)}
}

// Poll polls the wrapped source. Recording stops at the first write error;
// frames are still returned.
func (r *Recording) Poll() (Frame, bool) {
	f, ok := r.src.Poll()
	if ok && r.err == nil {
		if err := r.rec.Record(f); err != nil {
			r.err = fmt.Errorf("record frame: %w", err)
		}
	}
	return f, ok
}

// Err returns the write error that stopped the recording.
func (r *Recording) Err() error {
	return r.err
}

// Start starts the wrapped source if it has a background reader.
func (r *Recording) Start(ctx context.Context) {
	if s, ok := r.src.(interface{ Start(context.Context) }); ok {
		s.Start(ctx)
	}
}

// Stop stops the wrapped source if it has a background reader.
func (r *Recording) Stop() {
	if s, ok := r.src.(interface{ Stop() }); ok {
		s.Stop()
	}
}
