// Package gst manages GStreamer pipelines through the go-gst bindings.
//
// Pipelines are described with the syntax used by the gst-launch-1.0 utility.
// Named appsink elements deliver samples to Go functions, and the pipeline bus
// is drained to detect end-of-stream and errors.
package gst

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"
)

var initOnce sync.Once

// Init initializes GStreamer. It is safe to call more than once.
func Init() {
	initOnce.Do(func() { gst.Init(nil) })
}

// Sample is a single buffer received by an appsink element.
type Sample struct {
	// Data is a copy of the buffer contents. It is nil for sinks registered
	// with SetFrameSink.
	Data []byte
	// PTS is the presentation timestamp of the buffer, or nil if it has none.
	PTS      *time.Duration
	Duration time.Duration
	// Width and Height come from the sample caps, and are 0 for caps that do
	// not describe video.
	Width  int
	Height int
}

// SinkFunc is a type for functions that receive data from the appsink elements
// of a Pipeline.
type SinkFunc func(Sample)

// PipelineError is returned by Wait when an element posts an error message.
type PipelineError struct {
	Source  string
	Message string
	Debug   string
}

func (e *PipelineError) Error() string {
	if e.Debug == "" {
		return fmt.Sprintf("error from %s: %s", e.Source, e.Message)
	}
	return fmt.Sprintf("error from %s: %s (%s)", e.Source, e.Message, e.Debug)
}

// Pipeline represents a GStreamer pipeline that can provide sample data to Go
// programs through appsink elements.
type Pipeline struct {
	gstPipeline *gst.Pipeline

	mu    sync.Mutex
	sinks map[string]*app.Sink
}

// NewPipeline creates a GStreamer pipeline based on the syntax used in the
// gst-launch-1.0 utility.
func NewPipeline(description string) (*Pipeline, error) {
	Init()

	gstPipeline, err := gst.NewPipelineFromString(description)
	if err != nil {
		return nil, fmt.Errorf("parsing pipeline: %w", err)
	}

	return &Pipeline{
		gstPipeline: gstPipeline,
		sinks:       make(map[string]*app.Sink),
	}, nil
}

// SetSink associates fn with a named appsink element in the pipeline, causing
// it to be continuously called with copies of new samples while the pipeline is
// running.
//
// SetSink must only be called while the pipeline is stopped. It is possible to
// replace the sink function for an element by calling SetSink again with the
// same name and a new fn.
func (p *Pipeline) SetSink(name string, fn SinkFunc) error {
	return p.setSink(name, fn, true)
}

// SetFrameSink is like SetSink, but never copies buffer contents into the
// Sample. It suits consumers of raw video that only need timing and caps.
func (p *Pipeline) SetFrameSink(name string, fn SinkFunc) error {
	return p.setSink(name, fn, false)
}

func (p *Pipeline) setSink(name string, fn SinkFunc, withData bool) error {
	if fn == nil {
		panic("attempted to set nil SinkFunc")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	sink, ok := p.sinks[name]
	if !ok {
		elem, err := p.gstPipeline.GetElementByName(name)
		if err != nil {
			return fmt.Errorf("unknown sink name %s: %w", name, err)
		}
		sink = app.SinkFromElement(elem)
		if sink == nil {
			return fmt.Errorf("element %s is not an appsink", name)
		}
		p.sinks[name] = sink
	}

	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(s *app.Sink) gst.FlowReturn {
			return deliverSample(s, fn, withData)
		},
	})
	return nil
}

func deliverSample(s *app.Sink, fn SinkFunc, withData bool) gst.FlowReturn {
	gstSample := s.PullSample()
	if gstSample == nil {
		return gst.FlowEOS
	}

	buffer := gstSample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}

	sample := Sample{
		PTS: buffer.PresentationTimestamp().AsDuration(),
	}
	if d := buffer.Duration().AsDuration(); d != nil {
		sample.Duration = *d
	}
	if caps := gstSample.GetCaps(); caps != nil && caps.GetSize() > 0 {
		structure := caps.GetStructureAt(0)
		sample.Width = intField(structure, "width")
		sample.Height = intField(structure, "height")
	}

	if withData {
		mapInfo := buffer.Map(gst.MapRead)
		if mapInfo == nil {
			return gst.FlowOK
		}
		sample.Data = make([]byte, len(mapInfo.Bytes()))
		copy(sample.Data, mapInfo.Bytes())
		buffer.Unmap()
	}

	fn(sample)
	return gst.FlowOK
}

func intField(s *gst.Structure, name string) int {
	if s == nil {
		return 0
	}
	v, err := s.GetValue(name)
	if err != nil {
		return 0
	}
	switch v := v.(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint:
		return int(v)
	case uint32:
		return int(v)
	}
	return 0
}

// Start attempts to set the GStreamer pipeline to the PLAYING state, in which
// all elements are processing data and sinks are receiving output.
//
// An element that fails during the state change usually posts the reason on
// the bus, in which case it is returned as a *PipelineError.
func (p *Pipeline) Start() error {
	if err := p.gstPipeline.SetState(gst.StatePlaying); err != nil {
		if perr := p.queuedError(); perr != nil {
			return perr
		}
		return fmt.Errorf("starting pipeline: %w", err)
	}
	return nil
}

// queuedError pops every message already on the bus, and returns the first
// error message among them.
func (p *Pipeline) queuedError() error {
	bus := p.gstPipeline.GetPipelineBus()
	if bus == nil {
		return nil
	}
	for {
		msg := bus.TimedPop(0)
		if msg == nil {
			return nil
		}
		if msg.Type() == gst.MessageError {
			return newPipelineError(msg)
		}
	}
}

// MissingElements returns the names for which no element factory is
// registered, such as elements whose plugin is not installed.
func MissingElements(names ...string) []string {
	Init()

	var missing []string
	for _, name := range names {
		if gst.Find(name) == nil {
			missing = append(missing, name)
		}
	}
	return missing
}

// Stop attempts to set the pipeline to the NULL state, in which no elements are
// processing data and sinks are not receiving any output.
func (p *Pipeline) Stop() error {
	if err := p.gstPipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("stopping pipeline: %w", err)
	}
	return nil
}

// Close stops this pipeline if it is started and releases the sink callbacks
// associated with it.
func (p *Pipeline) Close() error {
	err := p.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.sinks)

	return err
}

// busPollInterval bounds how long Wait can go without checking its context.
const busPollInterval = 100 * time.Millisecond

// ErrNoBus is returned when a pipeline has no bus to wait on, which suggests a
// broken GStreamer installation.
var ErrNoBus = errors.New("pipeline has no bus")

// Wait blocks until the pipeline reaches end-of-stream, an element reports an
// error, or ctx is done. On error or cancellation the pipeline is stopped
// before Wait returns.
func (p *Pipeline) Wait(ctx context.Context) error {
	bus := p.gstPipeline.GetPipelineBus()
	if bus == nil {
		p.Stop()
		return ErrNoBus
	}

	for {
		if err := ctx.Err(); err != nil {
			p.Stop()
			return err
		}

		msg := bus.TimedPop(gst.ClockTime(busPollInterval))
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			return nil

		case gst.MessageError:
			p.Stop()
			return newPipelineError(msg)
		}
	}
}

func newPipelineError(msg *gst.Message) error {
	perr := &PipelineError{Source: msg.Source()}
	if gerr := msg.ParseError(); gerr != nil {
		perr.Message = gerr.Error()
		perr.Debug = gerr.DebugString()
	}
	return perr
}
