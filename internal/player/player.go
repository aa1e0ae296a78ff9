package player

import (
	"math"
	"sync"
	"time"

	"github.com/augmedia/augplayer/internal/log"
	"github.com/augmedia/augplayer/internal/watch"
)

// PipelineState is a media pipeline state that the player requests or
// observes.
type PipelineState int

const (
	PipelineNull PipelineState = iota
	PipelineReady
	PipelinePaused
	PipelinePlaying
)

// Engine is the media pipeline a Player drives. It is implemented by playbin.
type Engine interface {
	SetState(PipelineState) error
	QueryPosition() (time.Duration, bool)
	QueryDuration() (time.Duration, bool)
	QuerySeekable() bool
	SeekSimple(position time.Duration) error
	SetVolume(volume float64) error
}

// MessageKind classifies pipeline bus messages.
type MessageKind int

const (
	MessageError MessageKind = iota
	MessageEOS
	MessageDurationChanged
	MessageStateChanged
)

// Message is a pipeline bus message.
type Message struct {
	Kind MessageKind
	// FromPipeline is true when the top-level pipeline element posted the
	// message, rather than one of its children.
	FromPipeline bool
	State        PipelineState
	Err          error
}

// Status is a snapshot of the pipeline state mirrored by a Player.
type Status struct {
	Playing          bool
	SeekEnabled      bool
	Duration         time.Duration
	DurationKnown    bool
	Muted            bool
	Volume           float64
	VolumeBeforeMute float64
	UserIsSeeking    bool
	// Ended is set when the pipeline reaches end of stream, and cleared once
	// playback resumes or the position moves.
	Ended bool
	// LastError is the message of the most recent pipeline error, if any.
	LastError string
}

// Options configures a Player.
type Options struct {
	// Volume is the initial volume. It is clamped to [0, 1].
	Volume float64
	// SeekStep is the distance moved by SeekForward and SeekBackward.
	SeekStep time.Duration
}

// DefaultOptions matches the behavior of the player without configuration.
var DefaultOptions = Options{
	Volume:   0.5,
	SeekStep: 10 * time.Second,
}

// Player implements MediaPlayer over an Engine. It is safe for concurrent use
// by a control surface and a pipeline message handler.
type Player struct {
	engine   Engine
	seekStep time.Duration

	mu     sync.Mutex
	state  Status
	status *watch.Value[Status]
}

var _ MediaPlayer = (*Player)(nil)

// New creates a Player for engine and applies the initial volume to it.
func New(engine Engine, opts Options) *Player {
	if opts.SeekStep <= 0 {
		opts.SeekStep = DefaultOptions.SeekStep
	}

	volume := clampVolume(opts.Volume)
	p := &Player{
		engine:   engine,
		seekStep: opts.SeekStep,
		state: Status{
			Volume:           volume,
			VolumeBeforeMute: volume,
		},
	}
	if err := engine.SetVolume(volume); err != nil {
		log.Tprintf(p, "Failed to set initial volume: %v", err)
	}
	p.status = watch.NewValue(p.state)
	return p
}

// Status returns a snapshot of the mirrored state.
func (p *Player) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// WatchStatus sets up a handler function to continuously receive the status of
// the player as it is updated. See the watch package documentation for details.
func (p *Player) WatchStatus(handler func(Status)) watch.Watch {
	return p.status.Watch(handler)
}

// publish must be called with mu held.
func (p *Player) publish() {
	p.status.Set(p.state)
}

// Play starts playback. After end of stream the pipeline is still PLAYING,
// so it is taken through READY to restart the media from the beginning.
func (p *Player) Play() error {
	p.mu.Lock()
	ended := p.state.Ended
	p.mu.Unlock()

	if ended {
		if err := p.engine.SetState(PipelineReady); err != nil {
			return &Error{Kind: KindPlaying, Err: err}
		}
	}
	if err := p.engine.SetState(PipelinePlaying); err != nil {
		return &Error{Kind: KindPlaying, Err: err}
	}
	return nil
}

func (p *Player) Pause() error {
	if err := p.engine.SetState(PipelinePaused); err != nil {
		return &Error{Kind: KindPausing, Err: err}
	}
	return nil
}

// Stop moves the pipeline to READY, which releases playback resources but
// keeps the media loaded.
func (p *Player) Stop() error {
	if err := p.engine.SetState(PipelineReady); err != nil {
		return &Error{Kind: KindStopping, Err: err}
	}
	return nil
}

func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Playing
}

func (p *Player) SeekForward() error {
	pos, err := p.Position()
	if err != nil {
		return err
	}
	return p.SeekTo(pos + p.seekStep)
}

func (p *Player) SeekBackward() error {
	pos, err := p.Position()
	if err != nil {
		return err
	}
	return p.SeekTo(max(pos-p.seekStep, 0))
}

func (p *Player) SeekTo(position time.Duration) error {
	if !p.CanSeek() {
		return ErrSeekUnavailable
	}
	if err := p.engine.SeekSimple(position); err != nil {
		return &Error{Kind: KindSeeking, Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Ended {
		p.state.Ended = false
		p.publish()
	}
	return nil
}

func (p *Player) Duration() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Duration, p.state.DurationKnown
}

func (p *Player) CanSeek() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.SeekEnabled
}

func (p *Player) Position() (time.Duration, error) {
	pos, ok := p.engine.QueryPosition()
	if !ok {
		return 0, ErrPosition
	}
	return pos, nil
}

func (p *Player) UserIsSeeking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.UserIsSeeking
}

func (p *Player) SetUserIsSeeking(seeking bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.UserIsSeeking = seeking
	p.publish()
}

// SetVolume writes the clamped volume to the pipeline. While the player is not
// muted, the value also becomes the volume restored by the next unmute.
func (p *Player) SetVolume(volume float64) error {
	volume = clampVolume(volume)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.engine.SetVolume(volume); err != nil {
		return err
	}
	p.state.Volume = volume
	if !p.state.Muted {
		p.state.VolumeBeforeMute = volume
	}
	p.publish()
	return nil
}

func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Volume
}

func (p *Player) ToggleMute() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.Muted {
		if err := p.engine.SetVolume(p.state.VolumeBeforeMute); err != nil {
			return err
		}
		p.state.Volume = p.state.VolumeBeforeMute
		p.state.Muted = false
	} else {
		if err := p.engine.SetVolume(0); err != nil {
			return err
		}
		p.state.VolumeBeforeMute = p.state.Volume
		p.state.Volume = 0
		p.state.Muted = true
	}
	p.publish()
	return nil
}

func (p *Player) IsMuted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Muted
}

// SeekPercent implements dragging a seek slider to percent (0 to 100) of the
// media duration. Playback is paused around the seek, and the user seeking
// flag is set for the duration of the operation so position polling does not
// fight the slider.
func (p *Player) SeekPercent(percent float64) error {
	p.SetUserIsSeeking(true)
	defer p.SetUserIsSeeking(false)

	if err := p.Pause(); err != nil {
		return err
	}

	if duration, ok := p.Duration(); ok {
		percent = math.Max(0, math.Min(percent, 100))
		target := time.Duration(percent / 100 * float64(duration))
		if err := p.SeekTo(target); err != nil {
			return err
		}
	}

	return p.Play()
}

// Progress reports where a seek slider (0 to 100) should be drawn. Media that
// cannot seek, such as live streams, always report a full slider. The second
// result is false when the slider should be left alone: while the user is
// dragging it, while playback is not running, or while the position or
// duration is unknown.
func (p *Player) Progress() (float64, bool) {
	status := p.Status()
	if !status.SeekEnabled {
		return 100, true
	}
	if !status.Playing || status.UserIsSeeking || !status.DurationKnown || status.Duration <= 0 {
		return 0, false
	}

	pos, err := p.Position()
	if err != nil {
		return 0, false
	}
	return 100 / status.Duration.Seconds() * pos.Seconds(), true
}

// HandleMessage updates the mirrored state from a pipeline bus message.
func (p *Player) HandleMessage(msg Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch msg.Kind {
	case MessageError:
		log.Tprintf(p, "Error received from pipeline: %v", msg.Err)
		if msg.Err != nil {
			p.state.LastError = msg.Err.Error()
		}

	case MessageEOS:
		log.Tprintf(p, "Reached end of stream")
		p.state.Playing = false
		p.state.Ended = true

	case MessageDurationChanged:
		// The duration has changed, so the current one is no longer valid.
		p.state.Duration, p.state.DurationKnown = 0, false

	case MessageStateChanged:
		if !msg.FromPipeline {
			return
		}
		p.state.Playing = msg.State == PipelinePlaying
		if p.state.Playing {
			p.state.Ended = false
			if !p.state.DurationKnown {
				p.state.Duration, p.state.DurationKnown = p.engine.QueryDuration()
			}
			p.state.SeekEnabled = p.engine.QuerySeekable()
		}
	}

	p.publish()
}

// Close shuts the pipeline down.
func (p *Player) Close() error {
	return p.engine.SetState(PipelineNull)
}

func clampVolume(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(v, 1))
}
