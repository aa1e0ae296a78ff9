// Package player implements the playback controls of the desktop player on top
// of a media pipeline Engine, and mirrors the pipeline state that the controls
// depend on.
package player

import "time"

// PlaybackControl starts and stops playback.
type PlaybackControl interface {
	Play() error
	Pause() error
	Stop() error
	// Playing reports whether the pipeline last reported the PLAYING state.
	Playing() bool
}

// SeekControl moves the playback position.
type SeekControl interface {
	// SeekForward moves the position forward by the seek step.
	SeekForward() error
	// SeekBackward moves the position backward by the seek step, stopping at
	// the start of the media.
	SeekBackward() error
	SeekTo(position time.Duration) error
	// Duration reports the media duration, when the pipeline has reported one.
	Duration() (time.Duration, bool)
	CanSeek() bool
	Position() (time.Duration, error)
	UserIsSeeking() bool
	SetUserIsSeeking(bool)
}

// VolumeControl adjusts the output volume.
type VolumeControl interface {
	// SetVolume sets the volume, clamped to the range [0, 1].
	SetVolume(volume float64) error
	Volume() float64
	ToggleMute() error
	IsMuted() bool
}

// MediaPlayer groups every control a player surface can drive.
type MediaPlayer interface {
	PlaybackControl
	SeekControl
	VolumeControl
}

// ErrorKind identifies which player operation failed.
type ErrorKind int

const (
	KindSeeking ErrorKind = iota
	KindSeekUnavailable
	KindPosition
	KindPlaying
	KindPausing
	KindStopping
)

var errorMessages = map[ErrorKind]string{
	KindSeeking:         "unable to seek to the specified position with this media; check if you're using a stream",
	KindSeekUnavailable: "seek is unavailable for this media",
	KindPosition:        "unable to get position in this media",
	KindPlaying:         "error playing media",
	KindPausing:         "error pausing media",
	KindStopping:        "error stopping media",
}

// Error is returned by player controls. Err holds the pipeline failure, if
// there was one.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return errorMessages[e.Kind]
	}
	return errorMessages[e.Kind] + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any Error of the same kind, so the sentinel values below work
// with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinel errors for use with errors.Is.
var (
	ErrSeeking         error = &Error{Kind: KindSeeking}
	ErrSeekUnavailable error = &Error{Kind: KindSeekUnavailable}
	ErrPosition        error = &Error{Kind: KindPosition}
	ErrPlaying         error = &Error{Kind: KindPlaying}
	ErrPausing         error = &Error{Kind: KindPausing}
	ErrStopping        error = &Error{Kind: KindStopping}
)
