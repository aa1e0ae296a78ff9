package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/augmedia/augplayer/internal/log"
	"github.com/augmedia/augplayer/internal/processing"
	"github.com/augmedia/augplayer/internal/watch"
)

// errJobFinished ends a job status connection after the final status is sent.
var errJobFinished = errors.New("job finished")

type JobStatusHandler struct {
	job       *processing.Job
	socket    *websocket.Conn
	watch     watch.Watch
	ctx       context.Context
	shutdown  context.CancelCauseFunc
	waitGroup sync.WaitGroup
}

func (h *Handler) handleSocketJobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := h.queue.Job(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "Job not found", nil)
		return
	}

	ctx, shutdown := context.WithCancelCause(r.Context())
	jsh := &JobStatusHandler{
		job:      job,
		ctx:      ctx,
		shutdown: shutdown,
	}
	jsh.ServeHTTP(w, r)
}

func (jsh *JobStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log.Tprintf(jsh, "Starting new connection")
	defer func() {
		jsh.waitForCleanup()
		log.Tprintf(jsh, "Connection done: %v", context.Cause(jsh.ctx))
	}()

	var err error
	jsh.socket, err = websocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		jsh.shutdown(err)
		return
	}
	defer jsh.socket.Close()

	jsh.waitGroup.Add(1)
	go func() {
		defer jsh.waitGroup.Done()
		jsh.drainClient()
	}()

	jsh.watch = jsh.job.WatchStatus(jsh.sendNewJobStatus)
	defer jsh.watch.Cancel()

	<-jsh.ctx.Done()
}

func (jsh *JobStatusHandler) sendNewJobStatus(s processing.JobStatus) {
	log.Tprintf(jsh, "Received job status: %v", s)

	if err := jsh.socket.WriteJSON(s); err != nil {
		jsh.shutdown(err)
		return
	}

	if s.Finished() {
		jsh.socket.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(s.State)),
			time.Now().Add(time.Second),
		)
		jsh.shutdown(errJobFinished)
	}
}

func (jsh *JobStatusHandler) drainClient() {
	// Per https://pkg.go.dev/github.com/gorilla/websocket#hdr-Control_Messages,
	// we have to drain incoming messages ourselves even if we don't care about
	// them.
	for {
		if _, _, err := jsh.socket.NextReader(); err != nil {
			jsh.shutdown(err)
			return
		}
	}
}

func (jsh *JobStatusHandler) waitForCleanup() {
	if jsh.watch != nil {
		jsh.watch.Wait()
	}
	jsh.waitGroup.Wait()
}
