package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Writer encodes events as frames, flushing after each when the underlying
// writer supports it.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	fw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		fw.flusher = f
	}
	return fw
}

// WriteEvent writes one status or content frame. Content frames omit the type.
func (w *Writer) WriteEvent(ev Event) error {
	f := frame{Content: ev.Content}
	switch ev.Type {
	case EventStatus:
		f.Type = string(EventStatus)
	case EventContent:
	case EventDone:
		return w.WriteDone()
	default:
		return fmt.Errorf("unknown event type: %q", ev.Type)
	}

	payload, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return w.write(payload)
}

// WriteDone writes the sentinel frame.
func (w *Writer) WriteDone() error {
	return w.write([]byte(Sentinel))
}

func (w *Writer) write(payload []byte) error {
	if _, err := fmt.Fprintf(w.w, "%s%s\n\n", DataPrefix, payload); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}
