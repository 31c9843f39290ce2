package nn

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/bmharper/cimg/v2"
	"github.com/lotcam/lotcam/pkg/requests"
)

// HTTPDetector talks to an external object detection service over HTTP.
// The service receives a JPEG frame and returns detections in pixel space.
// Anything that speaks this little protocol works: in practice, a small
// Python sidecar wrapping an ultralytics model.
type HTTPDetector struct {
	url                 string
	confidenceThreshold float32
	quality             int
}

type detectRequestJSON struct {
	ImageBase64 string `json:"imageBase64"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

type detectResponseJSON struct {
	Objects []ObjectDetection `json:"objects"`
}

func NewHTTPDetector(url string) *HTTPDetector {
	return &HTTPDetector{
		url:                 url,
		confidenceThreshold: DefaultConfidenceThreshold,
		quality:             85,
	}
}

func (d *HTTPDetector) Close() {
}

func (d *HTTPDetector) DetectObjects(ctx context.Context, img *cimg.Image) ([]ObjectDetection, error) {
	jpg, err := cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling420, d.quality, 0))
	if err != nil {
		return nil, fmt.Errorf("Failed to encode frame for detection: %w", err)
	}
	req := &detectRequestJSON{
		ImageBase64: base64.StdEncoding.EncodeToString(jpg),
		Width:       img.Width,
		Height:      img.Height,
	}
	resp, err := requests.RequestJSON[detectResponseJSON](ctx, "POST", d.url, req)
	if err != nil {
		return nil, err
	}
	return FilterDetections(resp.Objects, d.confidenceThreshold), nil
}

// FilterDetections returns the detections at or above the confidence threshold
func FilterDetections(objects []ObjectDetection, confidence float32) []ObjectDetection {
	keep := make([]ObjectDetection, 0, len(objects))
	for _, obj := range objects {
		if obj.Confidence >= confidence {
			keep = append(keep, obj)
		}
	}
	return keep
}
