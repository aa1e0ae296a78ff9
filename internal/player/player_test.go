package player

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeEngine struct {
	mu        sync.Mutex
	states    []PipelineState
	seeks     []time.Duration
	volumes   []float64
	position  time.Duration
	hasPos    bool
	duration  time.Duration
	hasDur    bool
	seekable  bool
	stateErr  error
	seekErr   error
	volumeErr error

	onState func(PipelineState)
}

func (f *fakeEngine) SetState(s PipelineState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stateErr != nil {
		return f.stateErr
	}
	f.states = append(f.states, s)
	if f.onState != nil {
		f.onState(s)
	}
	return nil
}

func (f *fakeEngine) QueryPosition() (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position, f.hasPos
}

func (f *fakeEngine) QueryDuration() (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.duration, f.hasDur
}

func (f *fakeEngine) QuerySeekable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seekable
}

func (f *fakeEngine) SeekSimple(pos time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seekErr != nil {
		return f.seekErr
	}
	f.seeks = append(f.seeks, pos)
	return nil
}

func (f *fakeEngine) SetVolume(v float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.volumeErr != nil {
		return f.volumeErr
	}
	f.volumes = append(f.volumes, v)
	return nil
}

// newPlayingPlayer returns a player whose pipeline has reported PLAYING for
// seekable media with a known duration.
func newPlayingPlayer(t *testing.T, engine *fakeEngine) *Player {
	t.Helper()
	engine.seekable = true
	engine.duration, engine.hasDur = 100*time.Second, true
	engine.position, engine.hasPos = 30*time.Second, true

	p := New(engine, DefaultOptions)
	p.HandleMessage(Message{Kind: MessageStateChanged, FromPipeline: true, State: PipelinePlaying})
	return p
}

func TestNewAppliesInitialVolume(t *testing.T) {
	testCases := []struct {
		name   string
		volume float64
		want   float64
	}{
		{name: "default", volume: 0.5, want: 0.5},
		{name: "above range", volume: 3, want: 1},
		{name: "below range", volume: -1, want: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			engine := &fakeEngine{}
			p := New(engine, Options{Volume: tc.volume})

			if got := p.Volume(); got != tc.want {
				t.Errorf("Volume() = %v, want %v", got, tc.want)
			}
			if diff := cmp.Diff([]float64{tc.want}, engine.volumes); diff != "" {
				t.Errorf("unexpected engine volumes (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPlaybackStates(t *testing.T) {
	engine := &fakeEngine{}
	p := New(engine, DefaultOptions)

	for _, op := range []func() error{p.Play, p.Pause, p.Stop, p.Close} {
		if err := op(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	want := []PipelineState{PipelinePlaying, PipelinePaused, PipelineReady, PipelineNull}
	if diff := cmp.Diff(want, engine.states); diff != "" {
		t.Errorf("unexpected states (-want +got):\n%s", diff)
	}
}

func TestPlaybackErrors(t *testing.T) {
	cause := errors.New("state change failed")
	engine := &fakeEngine{stateErr: cause}
	p := New(engine, DefaultOptions)

	testCases := []struct {
		name string
		op   func() error
		want error
	}{
		{name: "play", op: p.Play, want: ErrPlaying},
		{name: "pause", op: p.Pause, want: ErrPausing},
		{name: "stop", op: p.Stop, want: ErrStopping},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.op()
			if !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
			if !errors.Is(err, cause) {
				t.Errorf("error %v does not wrap the pipeline error", err)
			}
		})
	}
}

func TestStateChanged(t *testing.T) {
	engine := &fakeEngine{}
	p := newPlayingPlayer(t, engine)

	status := p.Status()
	if !status.Playing || !status.SeekEnabled || !status.DurationKnown || status.Duration != 100*time.Second {
		t.Fatalf("unexpected status after PLAYING: %+v", status)
	}

	// Child elements change state on their own, and must not affect playback.
	p.HandleMessage(Message{Kind: MessageStateChanged, State: PipelinePaused})
	if !p.Playing() {
		t.Error("state change from child element was applied")
	}

	p.HandleMessage(Message{Kind: MessageStateChanged, FromPipeline: true, State: PipelinePaused})
	if p.Playing() {
		t.Error("still playing after pipeline paused")
	}
	if !p.CanSeek() {
		t.Error("seekability was cleared by leaving PLAYING")
	}
}

func TestDurationChanged(t *testing.T) {
	engine := &fakeEngine{}
	p := newPlayingPlayer(t, engine)

	p.HandleMessage(Message{Kind: MessageDurationChanged})
	if _, ok := p.Duration(); ok {
		t.Fatal("duration still known after DURATION_CHANGED")
	}

	engine.duration = 200 * time.Second
	p.HandleMessage(Message{Kind: MessageStateChanged, FromPipeline: true, State: PipelinePlaying})
	if d, ok := p.Duration(); !ok || d != 200*time.Second {
		t.Errorf("Duration() = %v, %v; want 200s, true", d, ok)
	}
}

func TestErrorMessageRecorded(t *testing.T) {
	p := New(&fakeEngine{}, DefaultOptions)
	p.HandleMessage(Message{Kind: MessageError, Err: errors.New("could not open resource")})

	if got, want := p.Status().LastError, "could not open resource"; got != want {
		t.Errorf("LastError = %q, want %q", got, want)
	}
}

func TestSeekStep(t *testing.T) {
	testCases := []struct {
		name     string
		position time.Duration
		op       func(*Player) error
		want     time.Duration
	}{
		{name: "forward", position: 30 * time.Second, op: (*Player).SeekForward, want: 40 * time.Second},
		{name: "backward", position: 30 * time.Second, op: (*Player).SeekBackward, want: 20 * time.Second},
		{name: "backward clamps at start", position: 4 * time.Second, op: (*Player).SeekBackward, want: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			engine := &fakeEngine{}
			p := newPlayingPlayer(t, engine)
			engine.position = tc.position

			if err := tc.op(p); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff([]time.Duration{tc.want}, engine.seeks); diff != "" {
				t.Errorf("unexpected seeks (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSeekUnavailable(t *testing.T) {
	engine := &fakeEngine{position: time.Second, hasPos: true}
	p := New(engine, DefaultOptions)

	if err := p.SeekTo(5 * time.Second); !errors.Is(err, ErrSeekUnavailable) {
		t.Errorf("SeekTo() = %v, want %v", err, ErrSeekUnavailable)
	}
	if err := p.SeekForward(); !errors.Is(err, ErrSeekUnavailable) {
		t.Errorf("SeekForward() = %v, want %v", err, ErrSeekUnavailable)
	}
	if len(engine.seeks) > 0 {
		t.Errorf("engine received seeks %v", engine.seeks)
	}
}

func TestSeekErrors(t *testing.T) {
	engine := &fakeEngine{}
	p := newPlayingPlayer(t, engine)

	engine.seekErr = errors.New("not seekable")
	if err := p.SeekTo(time.Second); !errors.Is(err, ErrSeeking) {
		t.Errorf("SeekTo() = %v, want %v", err, ErrSeeking)
	}

	engine.hasPos = false
	if _, err := p.Position(); !errors.Is(err, ErrPosition) {
		t.Errorf("Position() = %v, want %v", err, ErrPosition)
	}
	if err := p.SeekForward(); !errors.Is(err, ErrPosition) {
		t.Errorf("SeekForward() = %v, want %v", err, ErrPosition)
	}
}

func TestVolumeAndMute(t *testing.T) {
	engine := &fakeEngine{}
	p := New(engine, DefaultOptions)

	steps := []struct {
		name       string
		op         func() error
		wantVolume float64
		wantMuted  bool
	}{
		{name: "set", op: func() error { return p.SetVolume(0.8) }, wantVolume: 0.8},
		{name: "mute", op: p.ToggleMute, wantVolume: 0, wantMuted: true},
		{name: "set while muted", op: func() error { return p.SetVolume(0.3) }, wantVolume: 0.3, wantMuted: true},
		{name: "unmute restores volume before mute", op: p.ToggleMute, wantVolume: 0.8},
		{name: "clamp", op: func() error { return p.SetVolume(1.5) }, wantVolume: 1},
	}

	for _, step := range steps {
		if err := step.op(); err != nil {
			t.Fatalf("%s: unexpected error: %v", step.name, err)
		}
		if got := p.Volume(); got != step.wantVolume {
			t.Errorf("%s: Volume() = %v, want %v", step.name, got, step.wantVolume)
		}
		if got := p.IsMuted(); got != step.wantMuted {
			t.Errorf("%s: IsMuted() = %v, want %v", step.name, got, step.wantMuted)
		}
	}

	want := []float64{0.5, 0.8, 0, 0.3, 0.8, 1}
	if diff := cmp.Diff(want, engine.volumes); diff != "" {
		t.Errorf("unexpected engine volumes (-want +got):\n%s", diff)
	}
}

func TestVolumeErrorKeepsState(t *testing.T) {
	engine := &fakeEngine{}
	p := New(engine, DefaultOptions)

	engine.volumeErr = errors.New("no volume property")
	if err := p.SetVolume(0.9); err == nil {
		t.Fatal("SetVolume() succeeded")
	}
	if err := p.ToggleMute(); err == nil {
		t.Fatal("ToggleMute() succeeded")
	}
	if p.Volume() != 0.5 || p.IsMuted() {
		t.Errorf("state changed after failures: volume %v, muted %v", p.Volume(), p.IsMuted())
	}
}

func TestSeekPercent(t *testing.T) {
	engine := &fakeEngine{}
	p := newPlayingPlayer(t, engine)
	engine.states = nil

	var seekingDuringPause bool
	engine.onState = func(s PipelineState) {
		if s == PipelinePaused {
			seekingDuringPause = p.UserIsSeeking()
		}
	}

	if err := p.SeekPercent(25); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := cmp.Diff([]time.Duration{25 * time.Second}, engine.seeks); diff != "" {
		t.Errorf("unexpected seeks (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]PipelineState{PipelinePaused, PipelinePlaying}, engine.states); diff != "" {
		t.Errorf("unexpected states (-want +got):\n%s", diff)
	}
	if p.UserIsSeeking() {
		t.Error("user seeking flag left set")
	}
	if !seekingDuringPause {
		t.Error("user seeking flag was not set while paused")
	}
}

func TestSeekPercentClearsFlagOnError(t *testing.T) {
	engine := &fakeEngine{}
	p := newPlayingPlayer(t, engine)

	engine.seekErr = errors.New("seek failed")
	if err := p.SeekPercent(50); !errors.Is(err, ErrSeeking) {
		t.Errorf("SeekPercent() = %v, want %v", err, ErrSeeking)
	}
	if p.UserIsSeeking() {
		t.Error("user seeking flag left set after error")
	}
}

func TestProgress(t *testing.T) {
	t.Run("live media draws a full slider", func(t *testing.T) {
		p := New(&fakeEngine{}, DefaultOptions)
		if got, ok := p.Progress(); !ok || got != 100 {
			t.Errorf("Progress() = %v, %v; want 100, true", got, ok)
		}
	})

	t.Run("playing", func(t *testing.T) {
		p := newPlayingPlayer(t, &fakeEngine{})
		if got, ok := p.Progress(); !ok || got != 30 {
			t.Errorf("Progress() = %v, %v; want 30, true", got, ok)
		}
	})

	t.Run("user seeking", func(t *testing.T) {
		p := newPlayingPlayer(t, &fakeEngine{})
		p.SetUserIsSeeking(true)
		if _, ok := p.Progress(); ok {
			t.Error("Progress() reported a value while the user is seeking")
		}
	})

	t.Run("unknown duration", func(t *testing.T) {
		p := newPlayingPlayer(t, &fakeEngine{})
		p.HandleMessage(Message{Kind: MessageDurationChanged})
		if _, ok := p.Progress(); ok {
			t.Error("Progress() reported a value without a duration")
		}
	})
}

func TestEndOfStreamStopsPlaying(t *testing.T) {
	p := newPlayingPlayer(t, &fakeEngine{})
	p.HandleMessage(Message{Kind: MessageEOS})
	if p.Playing() {
		t.Error("still playing after end of stream")
	}
}

// busEngine posts a state change message only when the requested state differs
// from the current one, and holds messages until they are dispatched.
type busEngine struct {
	fakeEngine
	current PipelineState
	pending []Message
}

func (e *busEngine) SetState(s PipelineState) error {
	if err := e.fakeEngine.SetState(s); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if s != e.current {
		e.current = s
		e.pending = append(e.pending, Message{Kind: MessageStateChanged, FromPipeline: true, State: s})
	}
	return nil
}

func (e *busEngine) dispatch(p *Player) {
	e.mu.Lock()
	msgs := e.pending
	e.pending = nil
	e.mu.Unlock()

	for _, msg := range msgs {
		p.HandleMessage(msg)
	}
}

func newEndedPlayer(t *testing.T) (*Player, *busEngine) {
	t.Helper()
	engine := &busEngine{}
	engine.seekable = true
	engine.duration, engine.hasDur = 100*time.Second, true
	engine.position, engine.hasPos = 100*time.Second, true

	p := New(engine, DefaultOptions)
	if err := p.Play(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	engine.dispatch(p)

	// The pipeline stays in PLAYING at end of stream.
	p.HandleMessage(Message{Kind: MessageEOS})
	if p.Playing() || !p.Status().Ended {
		t.Fatalf("unexpected status after end of stream: %+v", p.Status())
	}
	engine.states = nil
	return p, engine
}

func TestPlayPauseAfterEndOfStream(t *testing.T) {
	p, engine := newEndedPlayer(t)

	var playing []bool
	for range 3 {
		toggle := p.Play
		if p.Playing() {
			toggle = p.Pause
		}
		if err := toggle(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		engine.dispatch(p)
		playing = append(playing, p.Playing())
	}

	if diff := cmp.Diff([]bool{true, false, true}, playing); diff != "" {
		t.Errorf("unexpected playing states (-want +got):\n%s", diff)
	}
	wantStates := []PipelineState{PipelineReady, PipelinePlaying, PipelinePaused, PipelinePlaying}
	if diff := cmp.Diff(wantStates, engine.states); diff != "" {
		t.Errorf("unexpected states (-want +got):\n%s", diff)
	}
	if p.Status().Ended {
		t.Error("end of stream still reported after playback restarted")
	}
}

func TestSeekAfterEndOfStream(t *testing.T) {
	p, engine := newEndedPlayer(t)

	if err := p.SeekPercent(50); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	engine.dispatch(p)

	wantStates := []PipelineState{PipelinePaused, PipelinePlaying}
	if diff := cmp.Diff(wantStates, engine.states); diff != "" {
		t.Errorf("unexpected states (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]time.Duration{50 * time.Second}, engine.seeks); diff != "" {
		t.Errorf("unexpected seeks (-want +got):\n%s", diff)
	}
	if !p.Playing() || p.Status().Ended {
		t.Errorf("unexpected status after seeking: %+v", p.Status())
	}
}

func TestErrorMessages(t *testing.T) {
	cause := errors.New("state change failed")

	testCases := []struct {
		err  error
		want string
	}{
		{ErrSeeking, "unable to seek to the specified position with this media; check if you're using a stream"},
		{ErrSeekUnavailable, "seek is unavailable for this media"},
		{ErrPosition, "unable to get position in this media"},
		{&Error{Kind: KindPlaying, Err: cause}, "error playing media: state change failed"},
		{&Error{Kind: KindPausing, Err: cause}, "error pausing media: state change failed"},
		{&Error{Kind: KindStopping, Err: cause}, "error stopping media: state change failed"},
	}

	for _, tc := range testCases {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("got %q, want %q", got, tc.want)
		}
	}
}
