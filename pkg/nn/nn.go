// Package nn holds the types produced by neural network object detection.
// Inference itself runs in an external service (see HTTPDetector); this package
// defines the wire types, the COCO class list, and the detector interface.
package nn

import (
	"context"
	"time"

	"github.com/bmharper/cimg/v2"
)

// Detections below this confidence are discarded by our side, regardless of
// what the detection service chooses to send us.
const DefaultConfidenceThreshold = 0.3

// ObjectDetection is an object that a neural network has found in an image
type ObjectDetection struct {
	Class      int     `json:"class"`
	Confidence float32 `json:"confidence"`
	Box        Rect    `json:"box"`
}

// Results of an NN object detection run on a single frame
type DetectionResult struct {
	ImageWidth  int               `json:"imageWidth"`
	ImageHeight int               `json:"imageHeight"`
	Objects     []ObjectDetection `json:"objects"`
	FramePTS    time.Time         `json:"framePTS"`
}

// ObjectDetector is given an image, and returns zero or more detected objects
type ObjectDetector interface {
	// Close the detector and release any connections
	Close()

	// DetectObjects returns the objects detected in a 24-bit RGB image.
	// Implementations must honor ctx cancellation, because detection can
	// involve a network round trip.
	DetectObjects(ctx context.Context, img *cimg.Image) ([]ObjectDetection, error)
}
