// Package camera provides the frame sources that feed the occupancy monitor:
// a directory of still images, a live MJPEG camera stream, and a synthetic
// parking lot for demos and tests.
package camera

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/bmharper/cimg/v2"
)

// Frame is one image pulled from a source.
type Frame struct {
	Image *cimg.Image // RGB
	ID    int64       // monotonic, restarts on Rewind
	At    time.Time   // when the frame was read
}

// ErrEndOfStream is returned by Next when a finite source runs out of frames.
// The monitor responds by rewinding the source (looping playback).
var ErrEndOfStream = errors.New("end of stream")

// FrameSource is a sequential supplier of frames. A source is owned by the
// monitor loop; implementations do not need to be thread safe.
type FrameSource interface {
	// Next blocks until the next frame is available.
	// Errors other than ErrEndOfStream are retryable; the monitor logs them
	// and backs off.
	Next(ctx context.Context) (*Frame, error)

	// Rewind restarts a finite source from its first frame, or forces a live
	// source to reconnect.
	Rewind() error

	Close()
}

// FromImage copies a stdlib image into a cimg RGB image.
func FromImage(src image.Image) *cimg.Image {
	bounds := src.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	dst := cimg.NewImage(width, height, cimg.PixelFormatRGB)
	switch img := src.(type) {
	case *image.NRGBA:
		copyPix4to3(dst, img.Pix, img.Stride, width, height)
	case *image.RGBA:
		// We only feed fully opaque images through here, so the premultiplied
		// values are the plain color values.
		copyPix4to3(dst, img.Pix, img.Stride, width, height)
	default:
		for y := 0; y < height; y++ {
			line := dst.Pixels[y*dst.Stride : y*dst.Stride+width*3]
			for x := 0; x < width; x++ {
				r, g, b, _ := src.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
				line[x*3] = byte(r >> 8)
				line[x*3+1] = byte(g >> 8)
				line[x*3+2] = byte(b >> 8)
			}
		}
	}
	return dst
}

func copyPix4to3(dst *cimg.Image, pix []byte, stride, width, height int) {
	for y := 0; y < height; y++ {
		srcLine := pix[y*stride : y*stride+width*4]
		dstLine := dst.Pixels[y*dst.Stride : y*dst.Stride+width*3]
		for x := 0; x < width; x++ {
			dstLine[x*3] = srcLine[x*4]
			dstLine[x*3+1] = srcLine[x*4+1]
			dstLine[x*3+2] = srcLine[x*4+2]
		}
	}
}

// ToRGBA copies a cimg RGB image into a stdlib RGBA image, with full alpha.
func ToRGBA(src *cimg.Image) *image.RGBA {
	if src.NChan() != 3 {
		src = src.ToRGB()
	}
	width := src.Width
	height := src.Height
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		srcLine := src.Pixels[y*src.Stride : y*src.Stride+width*3]
		dstLine := dst.Pix[y*dst.Stride : y*dst.Stride+width*4]
		for x := 0; x < width; x++ {
			dstLine[x*4] = srcLine[x*3]
			dstLine[x*4+1] = srcLine[x*3+1]
			dstLine[x*4+2] = srcLine[x*3+2]
			dstLine[x*4+3] = 255
		}
	}
	return dst
}
