package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/disintegration/imaging"
)

// DefaultMaxFrameWidth is the width that larger source frames are scaled down to.
// The heuristic signals don't benefit from more pixels, and the annotator gets
// cheaper.
const DefaultMaxFrameWidth = 1280

// ImageDirSource replays a directory of JPEG/PNG stills in filename order.
// This is how recorded footage exported as frame dumps gets analyzed.
type ImageDirSource struct {
	log      logs.Log
	dir      string
	files    []string
	index    int
	maxWidth int
	nextID   int64
	lastWarn time.Time
}

// NewImageDirSource scans dir for frames. maxWidth <= 0 means DefaultMaxFrameWidth.
// An empty or unreadable directory is an error.
func NewImageDirSource(log logs.Log, dir string, maxWidth int) (*ImageDirSource, error) {
	if maxWidth <= 0 {
		maxWidth = DefaultMaxFrameWidth
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory %v: %w", dir, err)
	}
	files := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("no jpeg/png frames in %v", dir)
	}
	return &ImageDirSource{
		log:      log,
		dir:      dir,
		files:    files,
		maxWidth: maxWidth,
	}, nil
}

// Next returns the next readable frame. Unreadable files are skipped with a
// throttled warning, because retrying a corrupt file would wedge the loop.
func (s *ImageDirSource) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for s.index < len(s.files) {
		path := s.files[s.index]
		s.index++
		img, err := imaging.Open(path, imaging.AutoOrientation(true))
		if err != nil {
			if time.Since(s.lastWarn) > 15*time.Second {
				s.log.Warnf("Skipping unreadable frame %v: %v", path, err)
				s.lastWarn = time.Now()
			}
			continue
		}
		nrgba := imaging.Clone(img)
		if nrgba.Bounds().Dx() > s.maxWidth {
			nrgba = imaging.Resize(nrgba, s.maxWidth, 0, imaging.Lanczos)
		}
		frame := &Frame{
			Image: FromImage(nrgba),
			ID:    s.nextID,
			At:    time.Now(),
		}
		s.nextID++
		return frame, nil
	}
	return nil, ErrEndOfStream
}

// Rewind restarts playback from the first file.
func (s *ImageDirSource) Rewind() error {
	s.index = 0
	s.nextID = 0
	return nil
}

func (s *ImageDirSource) Close() {
}

// NumFiles returns the number of frame files found at construction.
func (s *ImageDirSource) NumFiles() int {
	return len(s.files)
}
