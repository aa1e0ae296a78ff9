package gst

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-gst/go-glib/glib"
	"github.com/go-gst/go-gst/gst"
)

// State mirrors the GStreamer element states that callers care about.
type State int

const (
	StateNull State = iota
	StateReady
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "NULL"
	case StateReady:
		return "READY"
	case StatePaused:
		return "PAUSED"
	case StatePlaying:
		return "PLAYING"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var gstStates = map[State]gst.State{
	StateNull:    gst.StateNull,
	StateReady:   gst.StateReady,
	StatePaused:  gst.StatePaused,
	StatePlaying: gst.StatePlaying,
}

func fromGstState(s gst.State) State {
	switch s {
	case gst.StateReady:
		return StateReady
	case gst.StatePaused:
		return StatePaused
	case gst.StatePlaying:
		return StatePlaying
	}
	return StateNull
}

// MessageKind classifies the bus messages a Playbin forwards to its watcher.
type MessageKind int

const (
	MessageError MessageKind = iota
	MessageEOS
	MessageDurationChanged
	MessageStateChanged
)

// Message is a bus message reduced to the fields that a player needs.
type Message struct {
	Kind MessageKind
	// Source is the name of the object that posted the message.
	Source string
	// State is the new state for MessageStateChanged.
	State State
	// Err is set for MessageError.
	Err error
}

// PlaybinName is the element name given to every Playbin, and so the Source of
// its own state change messages.
const PlaybinName = "playbin"

// Playbin wraps a playbin element, which builds its own demuxing, decoding and
// rendering chain for a URI.
type Playbin struct {
	elem *gst.Element
}

// NewPlaybin creates a playbin element that plays uri.
func NewPlaybin(uri string) (*Playbin, error) {
	Init()

	elem, err := gst.NewElementWithName("playbin", PlaybinName)
	if err != nil {
		return nil, fmt.Errorf("creating playbin: %w", err)
	}
	if err := elem.SetProperty("uri", uri); err != nil {
		return nil, fmt.Errorf("setting playbin uri: %w", err)
	}
	return &Playbin{elem: elem}, nil
}

// SetState requests a state change.
func (p *Playbin) SetState(s State) error {
	return p.elem.SetState(gstStates[s])
}

// QueryPosition reports the current playback position.
func (p *Playbin) QueryPosition() (time.Duration, bool) {
	ok, pos := p.elem.QueryPosition(gst.FormatTime)
	if !ok || pos < 0 {
		return 0, false
	}
	return time.Duration(pos), true
}

// QueryDuration reports the total media duration, when it is known.
func (p *Playbin) QueryDuration() (time.Duration, bool) {
	ok, dur := p.elem.QueryDuration(gst.FormatTime)
	if !ok || dur < 0 {
		return 0, false
	}
	return time.Duration(dur), true
}

// QuerySeekable reports whether the media supports seeking in time.
func (p *Playbin) QuerySeekable() bool {
	q := gst.NewSeekingQuery(gst.FormatTime)
	if !p.elem.Query(q) {
		return false
	}
	_, seekable, _, _ := q.ParseSeeking()
	return seekable
}

var errSeekRejected = errors.New("seek rejected by pipeline")

// SeekSimple performs a flushing seek to the nearest key unit at pos.
func (p *Playbin) SeekSimple(pos time.Duration) error {
	if !p.elem.SeekSimple(int64(pos), gst.FormatTime, gst.SeekFlagFlush|gst.SeekFlagKeyUnit) {
		return errSeekRejected
	}
	return nil
}

// SetVolume sets the linear playback volume.
func (p *Playbin) SetVolume(v float64) error {
	return p.elem.SetProperty("volume", v)
}

// Watch forwards bus messages to fn until the watch is removed along with the
// element. A MainLoop must be running for the messages to be dispatched.
func (p *Playbin) Watch(fn func(Message)) error {
	bus := p.elem.GetBus()
	if bus == nil {
		return ErrNoBus
	}

	if !bus.AddWatch(func(msg *gst.Message) bool {
		if m, ok := toMessage(msg); ok {
			fn(m)
		}
		return true
	}) {
		return errors.New("adding bus watch")
	}
	return nil
}

func toMessage(msg *gst.Message) (Message, bool) {
	m := Message{Source: msg.Source()}
	switch msg.Type() {
	case gst.MessageError:
		m.Kind = MessageError
		m.Err = newPipelineError(msg)
	case gst.MessageEOS:
		m.Kind = MessageEOS
	case gst.MessageDurationChanged:
		m.Kind = MessageDurationChanged
	case gst.MessageStateChanged:
		_, newState := msg.ParseStateChanged()
		m.Kind = MessageStateChanged
		m.State = fromGstState(newState)
	default:
		return Message{}, false
	}
	return m, true
}

// Close sets the element to the NULL state, releasing its resources.
func (p *Playbin) Close() error {
	return p.elem.SetState(gst.StateNull)
}

// MainLoop runs the default GLib main context, which dispatches bus watches.
type MainLoop struct {
	loop *glib.MainLoop
}

// NewMainLoop creates a main loop on the default context.
func NewMainLoop() *MainLoop {
	Init()
	return &MainLoop{loop: glib.NewMainLoop(glib.MainContextDefault(), false)}
}

// Run blocks, dispatching events until Quit is called.
func (l *MainLoop) Run() { l.loop.Run() }

// Quit stops a running loop.
func (l *MainLoop) Quit() { l.loop.Quit() }
