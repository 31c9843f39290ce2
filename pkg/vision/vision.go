// Package vision implements the heuristic parking-bay occupancy detector.
// It needs no neural network: per zone it fuses three cheap image signals
// (pixel change against a reference, HSV color variance, edge density),
// and declares the bay occupied when at least two of them fire.
package vision

import (
	"image"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/lotcam/lotcam/pkg/geom"
)

// Signal thresholds. A signal "fires" when its value exceeds the threshold.
const (
	ChangeThreshold      = 0.15 // fraction of zone pixels changed vs reference
	ColorVarThreshold    = 0.40 // scaled mean HSV standard deviation
	EdgeDensityThreshold = 0.10 // fraction of zone pixels that are edges
)

// Pixel-level constants of the signal recipes.
const (
	pixelDiffThreshold  = 25  // 8-bit grayscale delta that counts as "changed"
	edgeStrongThreshold = 150 // Sobel magnitude of a definite edge
	edgeWeakThreshold   = 50  // Sobel magnitude worth keeping next to a strong edge
	colorVarScale       = 50  // divisor mapping mean HSV stddev into [0,1]
	blurRadius          = 2.0 // 5x5 Gaussian
	morphRadius         = 1.5 // 3x3 structuring element for open/close
)

// Zone is the geometry the detector scores, identified by the caller's zone id.
type Zone struct {
	ID      int64
	Polygon geom.Polygon
}

// ZoneSignals is the per-zone detector verdict, with the raw signal values
// retained for the annotator and the API.
type ZoneSignals struct {
	Change      float32 `json:"change"`
	ColorVar    float32 `json:"colorVar"`
	EdgeDensity float32 `json:"edgeDensity"`
	Votes       int     `json:"votes"`
	Occupied    bool    `json:"occupied"`
}

// Heuristic scores zones on successive frames.
// Not safe for concurrent use; the monitor loop owns it.
type Heuristic struct {
	log     logs.Log
	ref     *cimg.Image // reference image of the empty lot, nil for pure edge mode
	refPrep *image.RGBA // blurred grayscale reference, at frame dimensions
	masks   map[int64]*zoneMask
	maskW   int
	maskH   int
}

// NewHeuristic creates a detector. ref is an optional photo of the EMPTY lot;
// when nil, the change signal falls back to the edge map of the current frame,
// which still works but makes signals 1 and 3 correlated.
func NewHeuristic(log logs.Log, ref *cimg.Image) *Heuristic {
	return &Heuristic{
		log:   log,
		ref:   ref,
		masks: map[int64]*zoneMask{},
	}
}

// HasReference reports whether the detector runs against an empty-lot reference.
func (h *Heuristic) HasReference() bool {
	return h.ref != nil
}

// InvalidateMasks discards the cached zone rasterizations.
// Call after zone geometry changes.
func (h *Heuristic) InvalidateMasks() {
	h.masks = map[int64]*zoneMask{}
}

// Analyze scores every zone on the frame. The result is parallel to zones.
func (h *Heuristic) Analyze(frame *cimg.Image, zones []Zone) []ZoneSignals {
	rgba := toRGBA(frame)
	blurred := blurGray(rgba)
	edges := edgeMap(blurred)

	var change *image.Gray
	if h.ref != nil {
		change = changeMask(blurred, h.referenceFor(frame.Width, frame.Height))
	} else {
		// Pure edge mode: the edge map doubles as the change mask.
		change = edges
	}

	if h.maskW != frame.Width || h.maskH != frame.Height {
		h.masks = map[int64]*zoneMask{}
		h.maskW = frame.Width
		h.maskH = frame.Height
	}

	signals := make([]ZoneSignals, len(zones))
	for i, zone := range zones {
		mask := h.masks[zone.ID]
		if mask == nil {
			mask = rasterizeMask(zone.Polygon, frame.Width, frame.Height)
			h.masks[zone.ID] = mask
		}
		signals[i] = fuse(ZoneSignals{
			Change:      mask.fraction(change),
			ColorVar:    colorVariance(rgba, mask),
			EdgeDensity: mask.fraction(edges),
		})
	}
	return signals
}

// fuse applies the 2-of-3 vote to the raw signal values.
func fuse(sig ZoneSignals) ZoneSignals {
	if sig.Change > ChangeThreshold {
		sig.Votes++
	}
	if sig.ColorVar > ColorVarThreshold {
		sig.Votes++
	}
	if sig.EdgeDensity > EdgeDensityThreshold {
		sig.Votes++
	}
	sig.Occupied = sig.Votes >= 2
	return sig
}

// referenceFor returns the blurred grayscale reference at the given frame
// dimensions, rescaling the source image if the camera resolution differs.
func (h *Heuristic) referenceFor(width, height int) *image.RGBA {
	if h.refPrep != nil && h.refPrep.Bounds().Dx() == width && h.refPrep.Bounds().Dy() == height {
		return h.refPrep
	}
	ref := h.ref
	if ref.Width != width || ref.Height != height {
		h.log.Infof("Reference image is %vx%v but frames are %vx%v, rescaling", ref.Width, ref.Height, width, height)
		ref = cimg.ResizeNew(ref, width, height, nil)
	}
	h.refPrep = blurGray(toRGBA(ref))
	return h.refPrep
}
