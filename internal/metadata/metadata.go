// Package metadata describes the per-second frame records extracted from
// uploaded videos.
package metadata

import (
	"math"
	"sync"
	"time"
)

// Frame describes the region of the video that a sampled frame occupies at a
// given whole second.
type Frame struct {
	// Timestamp is the whole second of the video in which the frame was taken.
	Timestamp float64 `json:"timestamp"`
	X         uint32  `json:"x"`
	Y         uint32  `json:"y"`
	Width     uint32  `json:"width"`
	Height    uint32  `json:"height"`
}

// Sampler keeps at most one Frame for each elapsed second of a decoded stream.
// It is safe for concurrent use, though appsink callbacks arrive in order from
// a single streaming thread.
type Sampler struct {
	mu         sync.Mutex
	lastSecond float64
	frames     []Frame
}

// NewSampler returns a Sampler that has not seen any seconds yet.
func NewSampler() *Sampler {
	return &Sampler{lastSecond: -1}
}

// Observe records a frame for the second containing pts if no frame for a
// later or equal second has been recorded. A nil pts (a buffer without a
// presentation timestamp) is ignored.
//
// The position fields are left at zero; only the frame dimensions are known at
// this stage.
func (s *Sampler) Observe(pts *time.Duration, width, height int) (Frame, bool) {
	if pts == nil {
		return Frame{}, false
	}

	second := math.Floor(pts.Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()

	if second <= s.lastSecond {
		return Frame{}, false
	}
	s.lastSecond = second

	f := Frame{
		Timestamp: second,
		Width:     clampDimension(width),
		Height:    clampDimension(height),
	}
	s.frames = append(s.frames, f)
	return f, true
}

// Frames returns a copy of every frame recorded so far.
func (s *Sampler) Frames() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	frames := make([]Frame, len(s.frames))
	copy(frames, s.frames)
	return frames
}

func clampDimension(d int) uint32 {
	if d < 0 {
		return 0
	}
	return uint32(d)
}

// Resize maps frames recorded against their own dimensions onto a display of
// width by height, scaling positions proportionally. A frame with a zero width
// or height has no scale in that direction, so its position there becomes 0.
func Resize(frames []Frame, width, height uint32) []Frame {
	resized := make([]Frame, len(frames))
	for i, f := range frames {
		resized[i] = Frame{
			Timestamp: f.Timestamp,
			X:         scale(f.X, width, f.Width),
			Y:         scale(f.Y, height, f.Height),
			Width:     width,
			Height:    height,
		}
	}
	return resized
}

func scale(pos, to, from uint32) uint32 {
	if from == 0 {
		return 0
	}
	return uint32(float64(pos) * float64(to) / float64(from))
}
