package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/lotcam/lotcam/pkg/mjpeg"
)

// MJPEGSource pulls frames from a live multipart/x-mixed-replace camera stream.
// The constructor does not dial; the first Next() connects, so an unreachable
// camera at startup degrades into the monitor's retry/backoff path instead of
// killing the server.
type MJPEGSource struct {
	log    logs.Log
	url    string
	client *http.Client
	resp   *http.Response
	reader *mjpeg.Reader
	nextID int64
}

func NewMJPEGSource(log logs.Log, url string) *MJPEGSource {
	return &MJPEGSource{
		log: log,
		url: url,
		// No Client.Timeout: it would cut the stream mid-flight. The context
		// passed to Next bounds the connection instead.
		client: &http.Client{},
	}
}

func (s *MJPEGSource) connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", s.url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to camera %v: %w", s.url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("camera %v returned status %v", s.url, resp.Status)
	}
	reader, err := mjpeg.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		resp.Body.Close()
		return fmt.Errorf("camera %v is not an MJPEG stream: %w", s.url, err)
	}
	s.log.Infof("Connected to camera %v", s.url)
	s.resp = resp
	s.reader = reader
	return nil
}

func (s *MJPEGSource) disconnect() {
	if s.resp != nil {
		s.resp.Body.Close()
		s.resp = nil
	}
	s.reader = nil
}

func (s *MJPEGSource) Next(ctx context.Context) (*Frame, error) {
	if s.reader == nil {
		if err := s.connect(ctx); err != nil {
			return nil, err
		}
	}
	jpg, err := s.reader.NextFrame()
	if err != nil {
		s.disconnect()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			// Server closed the stream
			return nil, ErrEndOfStream
		}
		return nil, fmt.Errorf("failed to read frame from %v: %w", s.url, err)
	}
	img, err := cimg.Decompress(jpg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame from %v: %w", s.url, err)
	}
	if img.NChan() != 3 {
		img = img.ToRGB()
	}
	frame := &Frame{
		Image: img,
		ID:    s.nextID,
		At:    time.Now(),
	}
	s.nextID++
	return frame, nil
}

// Rewind drops the connection; the next call to Next reconnects.
func (s *MJPEGSource) Rewind() error {
	s.disconnect()
	return nil
}

func (s *MJPEGSource) Close() {
	s.disconnect()
}
