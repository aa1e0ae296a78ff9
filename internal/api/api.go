// Package api serves the HTTP API of the video backend.
//
// Every REST response is a JSON envelope with a status flag, a human readable
// message, and a data value. WebSocket endpoints stream processing job status
// and carry the signaling for WebRTC playback of stored media.
package api

import (
	"encoding/json"
	"io/fs"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/augmedia/augplayer/internal/assets"
	"github.com/augmedia/augplayer/internal/log"
	"github.com/augmedia/augplayer/internal/processing"
	"github.com/augmedia/augplayer/internal/store"
)

// Options configures a Handler.
type Options struct {
	Store *store.Store
	Queue *processing.Queue
	// MaxUploadSize limits the size of a single uploaded file. Zero means no
	// limit.
	MaxUploadSize int64
	// Client, if not nil, holds the browser player served under /app/.
	Client fs.FS
}

// Handler serves the video backend API.
type Handler struct {
	router        *mux.Router
	store         *store.Store
	queue         *processing.Queue
	maxUploadSize int64
}

// NewHandler creates a Handler serving the video backend API.
func NewHandler(opts Options) *Handler {
	h := &Handler{
		router:        mux.NewRouter(),
		store:         opts.Store,
		queue:         opts.Queue,
		maxUploadSize: opts.MaxUploadSize,
	}

	h.router.HandleFunc("/", h.handleRoot).Methods(http.MethodGet)

	h.router.HandleFunc("/media_files", h.handleMediaFiles).Methods(http.MethodGet)
	h.router.HandleFunc("/media_files/upload", h.handleUpload).Methods(http.MethodPost)
	h.router.HandleFunc("/media_files/{id}/stream", h.handleStream).Methods(http.MethodGet, http.MethodHead)
	h.router.HandleFunc("/media_files/{id}/metadata", h.handleMetadata).Methods(http.MethodGet)

	h.router.HandleFunc("/api/sockets/jobs/{id}", h.handleSocketJobStatus)
	h.router.HandleFunc("/api/sockets/webrtc-playback/{id}", h.handleSocketWebRTCPlayback)

	if opts.Client != nil {
		h.router.PathPrefix("/app/").Handler(
			http.StripPrefix("/app", assets.Handler(opts.Client)),
		)
	}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

var websocketUpgrader = websocket.Upgrader{}

// response is the envelope for every REST response.
type response struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func writeResponse(w http.ResponseWriter, code int, status bool, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(response{Status: status, Message: message, Data: data}); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}

func writeOK(w http.ResponseWriter, message string, data any) {
	writeResponse(w, http.StatusOK, true, message, data)
}

func writeError(w http.ResponseWriter, code int, message string, data any) {
	writeResponse(w, code, false, message, data)
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeOK(w, "Video Backend is running", nil)
}
