package mjpeg

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"
)

// Reader consumes an MJPEG stream, yielding one JPEG blob per part.
type Reader struct {
	mr *multipart.Reader
}

// NewReader creates a Reader on top of r.
// contentType is the Content-Type header of the HTTP response, from which
// we extract the multipart boundary.
func NewReader(r io.Reader, contentType string) (*Reader, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stream Content-Type '%v': %w", contentType, err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return nil, fmt.Errorf("expected a multipart stream, but Content-Type is '%v'", mediaType)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, fmt.Errorf("multipart stream has no boundary parameter")
	}
	// Some camera firmwares include the leading dashes in the header value,
	// which the multipart reader does not expect.
	boundary = strings.TrimPrefix(boundary, "--")
	return &Reader{
		mr: multipart.NewReader(r, boundary),
	}, nil
}

// NextFrame returns the next JPEG in the stream.
// Returns io.EOF once the stream is finished.
func (r *Reader) NextFrame() ([]byte, error) {
	part, err := r.mr.NextPart()
	if err != nil {
		return nil, err
	}
	defer part.Close()
	jpg, err := io.ReadAll(part)
	if err != nil {
		return nil, fmt.Errorf("failed to read JPEG part: %w", err)
	}
	return jpg, nil
}
