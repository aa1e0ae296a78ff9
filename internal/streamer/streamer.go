// Package streamer encodes stored media for playback by WebRTC clients.
package streamer

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"

	"github.com/augmedia/augplayer/internal/gst"
	"github.com/augmedia/augplayer/internal/log"
	"github.com/augmedia/augplayer/internal/watch"
)

// State represents the current state of the streamer.
type State int

const (
	// StateStopped means that no media is being streamed.
	StateStopped State = iota
	// StateStarting means that the streamer is building its pipeline.
	StateStarting
	// StatePlaying means that encoded media is flowing to the tracks.
	StatePlaying
)

var stateStrings = map[State]string{
	StateStopped:  "Stopped",
	StateStarting: "Starting",
	StatePlaying:  "Playing",
}

func (s State) String() string {
	if str, ok := stateStrings[s]; ok {
		return str
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Status represents the public state of the streamer for reading by clients.
type Status struct {
	State State
	// Source is the path of the media being streamed.
	Source string
	Error  error
}

// Tracks represents the current set of video and audio tracks for use by WebRTC
// clients.
type Tracks struct {
	Video webrtc.TrackLocal
	Audio webrtc.TrackLocal
}

// Streamer plays one media file at a time into WebRTC tracks, and notifies its
// consumers of ongoing state changes.
type Streamer struct {
	mu       sync.Mutex
	pipeline *gst.Pipeline
	cancel   context.CancelFunc

	status *watch.Value[Status]
	tracks *watch.Value[Tracks]
}

// New creates a stopped Streamer.
func New() *Streamer {
	return &Streamer{
		status: watch.NewValue(Status{}),
		tracks: watch.NewValue(Tracks{}),
	}
}

// WatchStatus sets up a handler function to continuously receive the status of
// the streamer as it is updated. See the watch package documentation for
// details.
func (s *Streamer) WatchStatus(handler func(Status)) watch.Watch {
	return s.status.Watch(handler)
}

// WatchTracks sets up a handler function to continuously receive the streamer's
// WebRTC tracks as they are updated. See the watch package documentation for
// details.
func (s *Streamer) WatchTracks(handler func(Tracks)) watch.Watch {
	return s.tracks.Watch(handler)
}

// Stop ends any active stream.
func (s *Streamer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.destroyAnyRunningPipeline()
	s.status.Set(Status{Error: err})
	s.tracks.Set(Tracks{})
	return err
}

// Play starts streaming the media file at path from its beginning, replacing
// any active stream.
func (s *Streamer) Play(path string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.Set(Status{State: StateStarting, Source: path})

	defer func() {
		if err != nil {
			s.destroyAnyRunningPipeline()
			s.status.Set(Status{Source: path, Error: err})
		}
	}()

	s.destroyAnyRunningPipeline()

	s.pipeline, err = newPipeline(path)
	if err != nil {
		return err
	}

	vt, at, err := s.createTrackPair()
	if err != nil {
		return err
	}

	if err := s.pipeline.SetSink(sinkNameVideo, createTrackSink(vt)); err != nil {
		return err
	}
	if err := s.pipeline.SetSink(sinkNameAudio, createTrackSink(at)); err != nil {
		return err
	}

	log.Tprintf(s, "Starting pipeline")
	if err := s.pipeline.Start(); err != nil {
		return err
	}
	log.Tprintf(s, "Started pipeline")

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.awaitEnd(ctx, s.pipeline, path)

	s.status.Set(Status{State: StatePlaying, Source: path})
	s.tracks.Set(Tracks{Video: vt, Audio: at})
	return nil
}

// awaitEnd stops the stream when pipeline reaches the end of the media or
// fails, unless the pipeline was replaced or stopped first.
func (s *Streamer) awaitEnd(ctx context.Context, pipeline *gst.Pipeline, path string) {
	err := pipeline.Wait(ctx)
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pipeline != pipeline {
		return
	}

	log.Tprintf(s, "Pipeline finished: %v", err)
	s.destroyAnyRunningPipeline()
	s.status.Set(Status{Source: path, Error: err})
	s.tracks.Set(Tracks{})
}

func newPipeline(path string) (*gst.Pipeline, error) {
	description, err := createPipelineDescription(path)
	if err != nil {
		return nil, err
	}
	return gst.NewPipeline(description)
}

func createPipelineDescription(path string) (string, error) {
	var buf bytes.Buffer

	err := pipelineDescriptionTemplate.Execute(&buf, struct {
		Location string
	}{
		Location: quote(path),
	})
	if err != nil {
		return "", fmt.Errorf("building pipeline template: %w", err)
	}

	return buf.String(), nil
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// These match up with the names of appsink elements in the pipeline
// description below.
const (
	sinkNameVideo = "video"
	sinkNameAudio = "audio"
)

// The sinks do not wait for preroll, so media with no audio stream still
// reaches the PLAYING state with an idle audio branch.
var pipelineDescriptionTemplate = template.Must(template.New("").Parse(`
	filesrc location={{.Location}}
	! decodebin name=decode

	decode.
	! queue max-size-time=2500000000 max-size-buffers=0 max-size-bytes=0
	! videoconvert
	! x264enc bitrate=4096 tune=zerolatency speed-preset=ultrafast
	! video/x-h264,profile=constrained-baseline,stream-format=byte-stream
	! appsink name=video max-buffers=32 async=false

	decode.
	! queue max-size-time=2500000000 max-size-buffers=0 max-size-bytes=0
	! audioconvert
	! audioresample
	! audio/x-raw,rate=48000,channels=2
	! opusenc bitrate=128000
	! appsink name=audio max-buffers=32 async=false
`))

func (s *Streamer) destroyAnyRunningPipeline() error {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	if s.pipeline == nil {
		return nil
	}

	err := s.pipeline.Close()
	s.pipeline = nil
	return err
}

// fmtp is described by https://tools.ietf.org/html/rfc6184.
//
// profile-level-id in particular is described in section 8.1 of the RFC. The
// first 2 octets together indicate the Constrained Baseline profile (42h to
// specify the Baseline profile, e0h to specify constraint set 1). The third
// octet (28h = 40) specifies level 4.0, the lowest to support 1920x1080 video.
//
// This needs to match up with the pipeline description above.
const videoCodecFMTP = "profile-level-id=42e028;level-asymmetry-allowed=1;packetization-mode=1"

var (
	// VideoCodecCapability represents the RTP codec settings for the video signal
	// produced by the streamer.
	VideoCodecCapability = webrtc.RTPCodecCapability{
		MimeType:    webrtc.MimeTypeH264,
		ClockRate:   90_000,
		SDPFmtpLine: videoCodecFMTP,
	}

	// AudioCodecCapability represents the RTP codec settings for the audio signal
	// produced by the streamer.
	AudioCodecCapability = webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: 48_000,
		Channels:  2,
	}
)

func (s *Streamer) createTrackPair() (video, audio *webrtc.TrackLocalStaticSample, err error) {
	streamID := fmt.Sprintf("Streamer(%p)", s)

	video, err = webrtc.NewTrackLocalStaticSample(VideoCodecCapability, "video", streamID)
	if err != nil {
		return
	}

	audio, err = webrtc.NewTrackLocalStaticSample(AudioCodecCapability, "audio", streamID)
	return
}

func createTrackSink(track *webrtc.TrackLocalStaticSample) gst.SinkFunc {
	return func(s gst.Sample) {
		track.WriteSample(media.Sample{
			Data:     s.Data,
			Duration: s.Duration,
		})
	}
}
