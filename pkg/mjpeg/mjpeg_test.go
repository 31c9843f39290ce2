package mjpeg

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	frames := [][]byte{
		[]byte("jpeg-frame-one"),
		[]byte("jpeg-frame-two-longer"),
		[]byte("x"),
	}

	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	require.NoError(t, err)
	for _, f := range frames {
		require.NoError(t, w.WriteFrame(f))
	}
	require.NoError(t, w.Close())

	resp := rec.Result()
	require.Equal(t, ContentType, resp.Header.Get("Content-Type"))

	r, err := NewReader(resp.Body, resp.Header.Get("Content-Type"))
	require.NoError(t, err)
	for _, expect := range frames {
		jpg, err := r.NextFrame()
		require.NoError(t, err)
		require.Equal(t, expect, jpg)
	}
	_, err = r.NextFrame()
	require.ErrorIs(t, err, io.EOF)
}

func TestBadContentType(t *testing.T) {
	_, err := NewReader(nil, "text/html")
	require.Error(t, err)

	_, err = NewReader(nil, "multipart/x-mixed-replace")
	require.Error(t, err)

	_, err = NewReader(nil, "")
	require.Error(t, err)
}
