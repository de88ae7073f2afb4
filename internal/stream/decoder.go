package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
)

// MaxLineSize caps a single buffered line. Longer lines are discarded whole.
const MaxLineSize = 1 * 1024 * 1024

const readChunkSize = 4 * 1024

// Decoder turns arbitrarily chunked input into events. A line split across
// chunks is buffered until its newline arrives.
type Decoder struct {
	partial    []byte
	discarding bool
	done       bool
	dropped    int
}

// NewDecoder creates a Decoder awaiting its first line.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Done reports whether the sentinel has been seen. Input after it is ignored.
func (d *Decoder) Done() bool {
	return d.done
}

// Dropped returns how many prefixed lines were discarded as malformed.
func (d *Decoder) Dropped() int {
	return d.dropped
}

// Feed consumes one chunk and returns the events completed by it, ending with
// an EventDone when the chunk contains the sentinel.
func (d *Decoder) Feed(chunk []byte) []Event {
	var events []Event
	for len(chunk) > 0 && !d.done {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			d.buffer(chunk)
			break
		}

		d.buffer(chunk[:i])
		chunk = chunk[i+1:]

		if d.discarding {
			d.discarding = false
			d.partial = d.partial[:0]
			continue
		}
		if ev, ok := d.line(d.partial); ok {
			events = append(events, ev)
		}
		d.partial = d.partial[:0]
	}
	return events
}

// Flush decodes a trailing line left without a newline when the input ends.
func (d *Decoder) Flush() []Event {
	if d.done || d.discarding || len(d.partial) == 0 {
		d.partial = d.partial[:0]
		return nil
	}
	ev, ok := d.line(d.partial)
	d.partial = d.partial[:0]
	if !ok {
		return nil
	}
	return []Event{ev}
}

func (d *Decoder) buffer(b []byte) {
	if d.discarding {
		return
	}
	if len(d.partial)+len(b) > MaxLineSize {
		slog.Warn("dropping oversized stream line", "limit", MaxLineSize)
		d.dropped++
		d.discarding = true
		d.partial = d.partial[:0]
		return
	}
	d.partial = append(d.partial, b...)
}

func (d *Decoder) line(raw []byte) (Event, bool) {
	raw = bytes.TrimSuffix(raw, []byte("\r"))
	if !bytes.HasPrefix(raw, []byte(DataPrefix)) {
		return Event{}, false
	}
	payload := raw[len(DataPrefix):]

	if string(payload) == Sentinel {
		d.done = true
		return Event{Type: EventDone}, true
	}

	var f *frame
	if err := json.Unmarshal(payload, &f); err != nil || f == nil {
		slog.Debug("dropping malformed stream frame", "payload", string(payload), "error", err)
		d.dropped++
		return Event{}, false
	}
	if f.Type == string(EventStatus) {
		return Status(f.Content), true
	}
	return Content(f.Content), true
}

// Decode lazily reads r and yields events until the sentinel or the end of r.
// A read error other than io.EOF is yielded once and ends the sequence. The
// sequence can be consumed only once.
func Decode(r io.Reader) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		d := NewDecoder()
		buf := make([]byte, readChunkSize)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				for _, ev := range d.Feed(buf[:n]) {
					if !yield(ev, nil) {
						return
					}
				}
				if d.Done() {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				for _, ev := range d.Flush() {
					if !yield(ev, nil) {
						return
					}
				}
				return
			}
			if err != nil {
				yield(Event{}, fmt.Errorf("read stream: %w", err))
				return
			}
		}
	}
}
