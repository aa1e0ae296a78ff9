// Package extract samples per-second frame metadata from stored videos with a
// GStreamer decoding pipeline.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/augmedia/augplayer/internal/gst"
	"github.com/augmedia/augplayer/internal/log"
	"github.com/augmedia/augplayer/internal/metadata"
)

// Extractor decodes a video file to raw frames and records one metadata frame
// for every second of video.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor {
	gst.Init()
	return &Extractor{}
}

// Description returns the pipeline used to decode the file at path. The sink
// does not synchronize to the clock, so files are processed as fast as they
// can be decoded.
func Description(path string) string {
	return fmt.Sprintf(
		"filesrc location=%s ! decodebin ! videoconvert ! appsink name=sink sync=false",
		quote(path),
	)
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// elements lists the factories that Description depends on.
var elements = []string{"filesrc", "decodebin", "videoconvert", "appsink"}

// Check reports an error when GStreamer lacks an element that the decoding
// pipeline needs.
func (e *Extractor) Check() error {
	if missing := gst.MissingElements(elements...); len(missing) > 0 {
		return fmt.Errorf("missing GStreamer elements: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Extract runs the decoding pipeline for the file at path until it reaches the
// end of the stream or ctx is done.
func (e *Extractor) Extract(ctx context.Context, path string) ([]metadata.Frame, error) {
	log.Tprintf(e, "Processing %s", path)
	frames, err := e.run(ctx, Description(path))
	if err != nil {
		return nil, err
	}
	log.Tprintf(e, "Extracted %d frames from %s", len(frames), path)
	return frames, nil
}

// run samples the appsink named "sink" in the pipeline built from description.
func (e *Extractor) run(ctx context.Context, description string) ([]metadata.Frame, error) {
	pipeline, err := gst.NewPipeline(description)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}
	defer pipeline.Close()

	sampler := metadata.NewSampler()
	if err := pipeline.SetFrameSink("sink", func(s gst.Sample) {
		sampler.Observe(s.PTS, s.Width, s.Height)
	}); err != nil {
		return nil, err
	}

	if err := pipeline.Start(); err != nil {
		return nil, err
	}
	if err := pipeline.Wait(ctx); err != nil {
		return nil, err
	}
	return sampler.Frames(), nil
}
