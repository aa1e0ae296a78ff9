package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"

	"github.com/augmedia/augplayer/internal/log"
	"github.com/augmedia/augplayer/internal/store"
	"github.com/augmedia/augplayer/internal/streamer"
	"github.com/augmedia/augplayer/internal/watch"
)

func (h *Handler) handleSocketWebRTCPlayback(w http.ResponseWriter, r *http.Request) {
	f, err := h.store.MediaFile(mux.Vars(r)["id"])
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrInvalidID):
		writeError(w, http.StatusNotFound, "Media file not found", nil)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to read media files", nil)
		return
	}

	path, err := h.store.LocalPath(f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read media file", nil)
		return
	}

	ctx, shutdown := context.WithCancelCause(r.Context())
	wh := &WebRTCHandler{
		path:     path,
		streamer: streamer.New(),
		ctx:      ctx,
		shutdown: shutdown,
	}
	wh.ServeHTTP(w, r)
}

// WebRTCHandler streams one stored media file to a single client. The server
// offers a session whenever the streamer's tracks change, and the client
// answers each offer over the same socket.
type WebRTCHandler struct {
	path     string
	streamer *streamer.Streamer

	socket *websocket.Conn
	pc     *webrtc.PeerConnection

	ctx       context.Context
	shutdown  context.CancelCauseFunc
	watches   []watch.Watch
	waitGroup sync.WaitGroup

	writeMu sync.Mutex
}

func (wh *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.Tprintf(wh, "Starting new connection")
	defer func() {
		wh.waitForCleanup()
		log.Tprintf(wh, "Connection done: %v", context.Cause(wh.ctx))
	}()

	var err error
	wh.socket, err = websocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		wh.shutdown(err)
		return
	}
	defer wh.socket.Close()

	wh.pc, err = webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		wh.shutdown(err)
		return
	}
	defer wh.pc.Close()

	wh.waitGroup.Add(1)
	go func() {
		defer wh.waitGroup.Done()
		wh.handleClientSessionAnswers()
	}()

	wh.watches = append(wh.watches,
		wh.streamer.WatchTracks(wh.handleTrackUpdate),
		wh.streamer.WatchStatus(wh.handleStatusUpdate),
	)
	defer func() {
		for _, w := range wh.watches {
			w.Cancel()
		}
	}()

	if err := wh.streamer.Play(wh.path); err != nil {
		wh.shutdown(err)
	}
	defer wh.streamer.Stop()

	<-wh.ctx.Done()
}

func (wh *WebRTCHandler) handleClientSessionAnswers() {
	for {
		_, r, err := wh.socket.NextReader()
		if err != nil {
			wh.shutdown(err)
			return
		}

		var msg struct{ SDP webrtc.SessionDescription }
		if err := json.NewDecoder(r).Decode(&msg); err != nil {
			wh.shutdown(err)
			return
		}

		if err := wh.pc.SetRemoteDescription(msg.SDP); err != nil {
			wh.shutdown(err)
			return
		}
	}
}

type playbackStatusMsg struct {
	State string
	Error string `json:",omitempty"`
}

func (wh *WebRTCHandler) handleStatusUpdate(s streamer.Status) {
	log.Tprintf(wh, "Received streamer status: %v", s.State)

	msg := playbackStatusMsg{State: s.State.String()}
	if s.Error != nil {
		msg.Error = s.Error.Error()
	}
	if err := wh.writeJSON(struct{ Status playbackStatusMsg }{msg}); err != nil {
		wh.shutdown(err)
	}
}

func (wh *WebRTCHandler) handleTrackUpdate(ts streamer.Tracks) {
	log.Tprintf(wh, "Received tracks: %v", ts)

	if err := wh.replaceTracks(ts); err != nil {
		wh.shutdown(err)
		return
	}

	if err := wh.renegotiateSession(); err != nil {
		wh.shutdown(err)
		return
	}
}

func (wh *WebRTCHandler) replaceTracks(ts streamer.Tracks) error {
	if err := wh.removeTracks(); err != nil {
		return err
	}

	if ts == (streamer.Tracks{}) {
		return nil
	}

	return wh.addTracks(ts)
}

func (wh *WebRTCHandler) renegotiateSession() error {
	sdp, err := wh.pc.CreateOffer(nil)
	if err != nil {
		return err
	}

	if err := wh.pc.SetLocalDescription(sdp); err != nil {
		return err
	}

	return wh.writeJSON(struct{ SDP webrtc.SessionDescription }{sdp})
}

func (wh *WebRTCHandler) removeTracks() error {
	for _, sender := range wh.pc.GetSenders() {
		if sender.Track() == nil {
			continue
		}
		if err := wh.pc.RemoveTrack(sender); err != nil {
			return err
		}
	}
	return nil
}

func (wh *WebRTCHandler) addTracks(ts streamer.Tracks) error {
	if _, err := wh.pc.AddTrack(ts.Video); err != nil {
		return err
	}
	if _, err := wh.pc.AddTrack(ts.Audio); err != nil {
		return err
	}
	return nil
}

// writeJSON serializes writes from the status and track watches, which run on
// separate goroutines.
func (wh *WebRTCHandler) writeJSON(v any) error {
	wh.writeMu.Lock()
	defer wh.writeMu.Unlock()
	return wh.socket.WriteJSON(v)
}

func (wh *WebRTCHandler) waitForCleanup() {
	for _, w := range wh.watches {
		w.Wait()
	}
	wh.waitGroup.Wait()
}
