// Package mjpeg reads and writes motion JPEG streams (multipart/x-mixed-replace).
package mjpeg

import (
	"fmt"
	"net/http"
)

// Boundary is the multipart boundary that we emit.
// Browsers don't care what this is, so long as the Content-Type header agrees.
const Boundary = "frame"

// ContentType is the value of the Content-Type header for an MJPEG stream.
const ContentType = "multipart/x-mixed-replace; boundary=" + Boundary

// Writer emits an MJPEG stream onto an HTTP response.
// Each frame is flushed immediately, so the client sees it without delay.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter prepares w for MJPEG streaming and sends the response headers.
// Returns an error if the ResponseWriter does not support flushing.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("MJPEG streaming needs an http.Flusher, but %T does not implement it", w)
	}
	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	return &Writer{
		w:       w,
		flusher: flusher,
	}, nil
}

// WriteFrame sends one JPEG image as a multipart chunk.
// An error almost always means the client has disconnected.
func (w *Writer) WriteFrame(jpg []byte) error {
	if _, err := fmt.Fprintf(w.w, "--%v\r\nContent-Type: image/jpeg\r\nContent-Length: %v\r\n\r\n", Boundary, len(jpg)); err != nil {
		return err
	}
	if _, err := w.w.Write(jpg); err != nil {
		return err
	}
	if _, err := w.w.Write([]byte("\r\n")); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}

// Close emits the final multipart boundary.
// A live camera feed runs until the client disconnects, so nobody calls Close
// on it, but a finite stream must be terminated for readers to see a clean EOF.
func (w *Writer) Close() error {
	if _, err := fmt.Fprintf(w.w, "--%v--\r\n", Boundary); err != nil {
		return err
	}
	w.flusher.Flush()
	return nil
}
