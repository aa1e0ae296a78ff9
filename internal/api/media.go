package api

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/augmedia/augplayer/internal/log"
	"github.com/augmedia/augplayer/internal/metadata"
	"github.com/augmedia/augplayer/internal/processing"
	"github.com/augmedia/augplayer/internal/store"
)

// uploadField is the multipart form field that carries an uploaded file.
const uploadField = "media_file"

func (h *Handler) handleMediaFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.store.MediaFiles()
	if err != nil {
		log.Tprintf(h, "Failed to read media files: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to read media files", []store.MediaFile{})
		return
	}
	writeOK(w, "Media files retrieved successfully", files)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	f, err := h.store.MediaFile(mux.Vars(r)["id"])
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrInvalidID):
		writeError(w, http.StatusNotFound, "Media file not found", nil)
		return
	case err != nil:
		log.Tprintf(h, "Failed to look up media file: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to read media files", nil)
		return
	}

	file, err := h.store.Open(f)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Media file not found", nil)
		return
	}
	if err != nil {
		log.Tprintf(h, "Failed to open %s: %v", f.ID, err)
		writeError(w, http.StatusInternalServerError, "Failed to read media file", nil)
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		log.Tprintf(h, "Failed to stat %s: %v", f.ID, err)
		writeError(w, http.StatusInternalServerError, "Failed to read media file", nil)
		return
	}

	// ServeContent handles range requests, which browsers rely on for seeking.
	http.ServeContent(w, r, f.Filename, stat.ModTime(), file)
}

func (h *Handler) handleMetadata(w http.ResponseWriter, r *http.Request) {
	size, ok, err := parseSize(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid width or height", []metadata.Frame{})
		return
	}

	frames, err := h.store.Metadata(mux.Vars(r)["id"])
	if errors.Is(err, store.ErrInvalidID) {
		writeError(w, http.StatusBadRequest, "Invalid media file id", []metadata.Frame{})
		return
	}
	if err != nil {
		log.Tprintf(h, "Failed to read metadata: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to read metadata file", []metadata.Frame{})
		return
	}

	if ok {
		frames = metadata.Resize(frames, size.width, size.height)
	}
	writeOK(w, "Meta data file retrieved successfully", frames)
}

type frameSize struct{ width, height uint32 }

var errInvalidSize = errors.New("width and height must be given together as positive integers")

// parseSize reads the optional width and height query parameters that resize
// metadata to a display size.
func parseSize(r *http.Request) (frameSize, bool, error) {
	q := r.URL.Query()
	ws, hs := q.Get("width"), q.Get("height")
	if ws == "" && hs == "" {
		return frameSize{}, false, nil
	}

	w, werr := strconv.ParseUint(ws, 10, 32)
	h, herr := strconv.ParseUint(hs, 10, 32)
	if werr != nil || herr != nil || w == 0 || h == 0 {
		return frameSize{}, false, errInvalidSize
	}
	return frameSize{uint32(w), uint32(h)}, true, nil
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	part, err := nextUploadPart(r)
	switch {
	case errors.Is(err, errNoFile):
		writeError(w, http.StatusBadRequest, "No file found in the request", nil)
		return
	case errors.Is(err, errMissingName):
		writeError(w, http.StatusBadRequest, "File name or field name is missing", nil)
		return
	case err != nil:
		log.Tprintf(h, "Failed to read upload: %v", err)
		writeError(w, http.StatusBadRequest, "No file found in the request", nil)
		return
	}
	defer part.Close()

	f, err := h.store.SaveUpload(part.FileName(), part, h.maxUploadSize)
	switch {
	case errors.Is(err, store.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "File is too large", nil)
		return
	case errors.Is(err, store.ErrInvalidFilename):
		writeError(w, http.StatusBadRequest, "File name or field name is missing", nil)
		return
	case err != nil:
		log.Tprintf(h, "Failed to store video: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to store video", nil)
		return
	}

	job, err := h.queue.Submit(f)
	switch {
	case errors.Is(err, processing.ErrQueueFull), errors.Is(err, processing.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, "Video processing is unavailable, try again later", nil)
		return
	case err != nil:
		log.Tprintf(h, "Failed to queue video: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to process video", nil)
		return
	}

	if r.URL.Query().Get("async") == "true" {
		writeResponse(w, http.StatusAccepted, true, "Processing", f)
		return
	}

	err = job.Wait(r.Context())
	switch {
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		// The client is gone. The job keeps running.
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to process video", nil)
		return
	}
	writeOK(w, "Success", f)
}

var (
	errNoFile      = errors.New("no file in request")
	errMissingName = errors.New("file name or field name is missing")
)

// nextUploadPart returns the first part of a multipart request, which must be
// a file in the upload field.
func nextUploadPart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, errNoFile
	}

	part, err := mr.NextPart()
	if errors.Is(err, io.EOF) {
		return nil, errNoFile
	}
	if err != nil {
		return nil, err
	}

	if part.FileName() == "" || part.FormName() != uploadField {
		part.Close()
		return nil, errMissingName
	}
	return part, nil
}
