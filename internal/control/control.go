// Package control serves an HTTP API for remote control of the desktop player.
//
// Player actions are exposed as RPC endpoints (see the rpc package), and the
// mirrored player state is streamed over a WebSocket.
package control

import (
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/augmedia/augplayer/internal/api/rpc"
	"github.com/augmedia/augplayer/internal/player"
	"github.com/augmedia/augplayer/internal/watch"
)

// Player is the set of player operations that can be controlled remotely.
type Player interface {
	player.MediaPlayer
	SeekPercent(percent float64) error
	Status() player.Status
	WatchStatus(func(player.Status)) watch.Watch
}

// Handler serves the remote control API for a single player.
type Handler struct {
	router *mux.Router
	player Player
}

// NewHandler creates a Handler serving the remote control API for p.
func NewHandler(p Player) *Handler {
	h := &Handler{
		router: mux.NewRouter(),
		player: p,
	}

	h.router.Handle("/api/rpc/play", rpc.HTTPHandler(h.rpcAction(p.Play)))
	h.router.Handle("/api/rpc/pause", rpc.HTTPHandler(h.rpcAction(p.Pause)))
	h.router.Handle("/api/rpc/stop", rpc.HTTPHandler(h.rpcAction(p.Stop)))
	h.router.Handle("/api/rpc/seek-forward", rpc.HTTPHandler(h.rpcAction(p.SeekForward)))
	h.router.Handle("/api/rpc/seek-backward", rpc.HTTPHandler(h.rpcAction(p.SeekBackward)))
	h.router.Handle("/api/rpc/mute", rpc.HTTPHandler(h.rpcAction(p.ToggleMute)))
	h.router.Handle("/api/rpc/seek", rpc.HTTPHandler(h.rpcSeek))
	h.router.Handle("/api/rpc/volume", rpc.HTTPHandler(h.rpcVolume))

	h.router.HandleFunc("/api/sockets/player-status", h.handleSocketPlayerStatus)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

var websocketUpgrader = websocket.Upgrader{}

func (h *Handler) rpcAction(action func() error) rpc.HandlerFunc[struct{}] {
	return func(_ *http.Request, _ struct{}) (code int, body any) {
		if err := action(); err != nil {
			return errorCode(err), err
		}
		return http.StatusNoContent, nil
	}
}

type seekParams struct {
	// Position is an absolute position in seconds.
	Position *float64
	// Percent is a position relative to the media duration, from 0 to 100.
	Percent *float64
}

var errSeekParams = errors.New("exactly one of Position or Percent is required")

// maxPositionSeconds is the largest position a time.Duration can represent.
const maxPositionSeconds = float64(math.MaxInt64 / int64(time.Second))

func (h *Handler) rpcSeek(_ *http.Request, params seekParams) (code int, body any) {
	var err error
	switch {
	case params.Position != nil && params.Percent == nil:
		if *params.Position < 0 {
			return http.StatusBadRequest, errors.New("position must not be negative")
		}
		if *params.Position > maxPositionSeconds {
			return http.StatusBadRequest, errors.New("position out of range")
		}
		err = h.player.SeekTo(time.Duration(*params.Position * float64(time.Second)))
	case params.Percent != nil && params.Position == nil:
		err = h.player.SeekPercent(*params.Percent)
	default:
		return http.StatusBadRequest, errSeekParams
	}

	if err != nil {
		return errorCode(err), err
	}
	return http.StatusNoContent, nil
}

func (h *Handler) rpcVolume(_ *http.Request, params struct{ Volume *float64 }) (code int, body any) {
	if params.Volume == nil {
		return http.StatusBadRequest, errors.New("volume required")
	}
	if err := h.player.SetVolume(*params.Volume); err != nil {
		return errorCode(err), err
	}
	return http.StatusOK, struct{ Volume float64 }{h.player.Volume()}
}

// errorCode distinguishes requests that the current media cannot satisfy from
// pipeline failures.
func errorCode(err error) int {
	switch {
	case errors.Is(err, player.ErrSeekUnavailable), errors.Is(err, player.ErrPosition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
