package vision

import (
	"image"

	"github.com/anthonynsimon/bild/blend"
	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
	"github.com/anthonynsimon/bild/segment"
	"github.com/bmharper/cimg/v2"
)

// toRGBA copies a cimg RGB image into a stdlib RGBA image, which is what
// the bild filters operate on.
func toRGBA(img *cimg.Image) *image.RGBA {
	src := img
	if src.NChan() != 3 {
		src = src.ToRGB()
	}
	dst := image.NewRGBA(image.Rect(0, 0, src.Width, src.Height))
	for y := 0; y < src.Height; y++ {
		srcLine := src.Pixels[y*src.Stride : y*src.Stride+src.Width*3]
		dstLine := dst.Pix[y*dst.Stride : y*dst.Stride+src.Width*4]
		for x := 0; x < src.Width; x++ {
			dstLine[x*4] = srcLine[x*3]
			dstLine[x*4+1] = srcLine[x*3+1]
			dstLine[x*4+2] = srcLine[x*3+2]
			dstLine[x*4+3] = 255
		}
	}
	return dst
}

// blurGray converts to grayscale and applies a 5x5 Gaussian blur.
// The result stays in RGBA form (R = G = B = gray), because that is what
// the downstream bild filters consume.
func blurGray(rgba *image.RGBA) *image.RGBA {
	return blur.Gaussian(effect.Grayscale(rgba), blurRadius)
}

// changeMask computes the binary mask of pixels that differ from the reference
// by at least pixelDiffThreshold (8-bit), cleaned up with a morphological open
// followed by close. cur and ref must be blurred grayscale images of equal size.
func changeMask(cur, ref *image.RGBA) *image.Gray {
	diff := segment.Threshold(blend.Difference(cur, ref), pixelDiffThreshold)
	opened := effect.Dilate(effect.Erode(diff, morphRadius), morphRadius)
	closed := effect.Erode(effect.Dilate(opened, morphRadius), morphRadius)
	return rgbaToBinary(closed)
}

// edgeMap computes a Canny-style edge map from a blurred grayscale image:
// Sobel gradient magnitude, double threshold, and weak edges kept only where
// they touch a strong edge (one dilation round approximates the hysteresis walk).
func edgeMap(blurred *image.RGBA) *image.Gray {
	mag := effect.Sobel(blurred)
	strong := segment.Threshold(mag, edgeStrongThreshold)
	weak := segment.Threshold(mag, edgeWeakThreshold)
	grown := effect.Dilate(strong, morphRadius)
	out := image.NewGray(weak.Bounds())
	h := weak.Bounds().Dy()
	w := weak.Bounds().Dx()
	for y := 0; y < h; y++ {
		weakLine := weak.Pix[y*weak.Stride : y*weak.Stride+w]
		grownLine := grown.Pix[y*grown.Stride : y*grown.Stride+w*4]
		outLine := out.Pix[y*out.Stride : y*out.Stride+w]
		for x := 0; x < w; x++ {
			if weakLine[x] >= 128 && grownLine[x*4] >= 128 {
				outLine[x] = 255
			}
		}
	}
	return out
}

// rgbaToBinary reduces an RGBA image holding a binary mask (from the bild
// morphology filters) back to a single-channel mask.
func rgbaToBinary(src *image.RGBA) *image.Gray {
	dst := image.NewGray(src.Bounds())
	h := src.Bounds().Dy()
	w := src.Bounds().Dx()
	for y := 0; y < h; y++ {
		srcLine := src.Pix[y*src.Stride : y*src.Stride+w*4]
		dstLine := dst.Pix[y*dst.Stride : y*dst.Stride+w]
		for x := 0; x < w; x++ {
			if srcLine[x*4] >= 128 {
				dstLine[x] = 255
			}
		}
	}
	return dst
}
