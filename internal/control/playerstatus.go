package control

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/augmedia/augplayer/internal/log"
	"github.com/augmedia/augplayer/internal/player"
	"github.com/augmedia/augplayer/internal/watch"
)

type PlayerStatusHandler struct {
	player    Player
	socket    *websocket.Conn
	watch     watch.Watch
	ctx       context.Context
	shutdown  context.CancelCauseFunc
	waitGroup sync.WaitGroup
}

func (h *Handler) handleSocketPlayerStatus(w http.ResponseWriter, r *http.Request) {
	ctx, shutdown := context.WithCancelCause(r.Context())
	psh := &PlayerStatusHandler{
		player:   h.player,
		ctx:      ctx,
		shutdown: shutdown,
	}
	psh.ServeHTTP(w, r)
}

func (psh *PlayerStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.Tprintf(psh, "Starting new connection")
	defer func() {
		psh.waitForCleanup()
		log.Tprintf(psh, "Connection done: %v", context.Cause(psh.ctx))
	}()

	var err error
	psh.socket, err = websocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		psh.shutdown(err)
		return
	}
	defer psh.socket.Close()

	psh.waitGroup.Add(1)
	go func() {
		defer psh.waitGroup.Done()
		psh.drainClient()
	}()

	psh.watch = psh.player.WatchStatus(psh.sendNewPlayerStatus)
	defer psh.watch.Cancel()

	<-psh.ctx.Done()
}

func (psh *PlayerStatusHandler) sendNewPlayerStatus(s player.Status) {
	log.Tdebugf(psh, "Received player status: %+v", s)

	if err := psh.socket.WriteJSON(mapPlayerStatusToMessage(s)); err != nil {
		psh.shutdown(err)
	}
}

func (psh *PlayerStatusHandler) drainClient() {
	// Per https://pkg.go.dev/github.com/gorilla/websocket#hdr-Control_Messages,
	// we have to drain incoming messages ourselves even if we don't care about
	// them.
	for {
		if _, _, err := psh.socket.NextReader(); err != nil {
			psh.shutdown(err)
			return
		}
	}
}

func (psh *PlayerStatusHandler) waitForCleanup() {
	if psh.watch != nil {
		psh.watch.Wait()
	}
	psh.waitGroup.Wait()
}

type playerStatusMsg struct {
	Playing       bool
	SeekEnabled   bool
	Duration      *float64 `json:",omitempty"`
	Muted         bool
	Volume        float64
	UserIsSeeking bool
	Ended         bool
	Error         string `json:",omitempty"`
}

func mapPlayerStatusToMessage(s player.Status) playerStatusMsg {
	msg := playerStatusMsg{
		Playing:       s.Playing,
		SeekEnabled:   s.SeekEnabled,
		Muted:         s.Muted,
		Volume:        s.Volume,
		UserIsSeeking: s.UserIsSeeking,
		Ended:         s.Ended,
		Error:         s.LastError,
	}
	if s.DurationKnown {
		d := s.Duration.Seconds()
		msg.Duration = &d
	}
	return msg
}
