package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/augmedia/augplayer/internal/metadata"
	"github.com/augmedia/augplayer/internal/processing"
	"github.com/augmedia/augplayer/internal/store"
)

type extractFunc func(ctx context.Context, path string) ([]metadata.Frame, error)

func (f extractFunc) Extract(ctx context.Context, path string) ([]metadata.Frame, error) {
	return f(ctx, path)
}

var testFrames = []metadata.Frame{
	{Timestamp: 0, X: 100, Y: 50, Width: 1920, Height: 1080},
	{Timestamp: 1, X: 0, Y: 0, Width: 1920, Height: 1080},
}

type testServer struct {
	*httptest.Server
	store *store.Store
}

func newTestServer(t *testing.T, extract extractFunc) *testServer {
	t.Helper()

	s, err := store.New(afero.NewMemMapFs(), "/media")
	require.NoError(t, err)

	if extract == nil {
		extract = func(context.Context, string) ([]metadata.Frame, error) { return testFrames, nil }
	}
	q := processing.NewQueue(s, extract, processing.Options{Workers: 1, QueueSize: 1})
	t.Cleanup(q.Close)

	h := NewHandler(Options{
		Store:         s,
		Queue:         q,
		MaxUploadSize: 1024,
		Client: fstest.MapFS{
			"index.html": {Data: []byte("<!doctype html>player")},
		},
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, store: s}
}

type envelope struct {
	Status  bool
	Message string
	Data    json.RawMessage
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	defer resp.Body.Close()
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func uploadRequest(t *testing.T, url, field, filename, content string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename == "" {
		require.NoError(t, mw.WriteField(field, content))
	} else {
		fw, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, url, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestRoot(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	require.True(t, env.Status)
	require.Equal(t, "Video Backend is running", env.Message)
	require.JSONEq(t, "null", string(env.Data))
}

func TestMediaFilesWithoutCatalog(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/media_files")
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	require.False(t, env.Status)
	require.Equal(t, "Failed to read media files", env.Message)
	require.JSONEq(t, "[]", string(env.Data))
}

func TestUploadAndRead(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.DefaultClient.Do(uploadRequest(t, srv.URL+"/media_files/upload", "media_file", "clip.mp4", "video data"))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	require.True(t, env.Status)
	require.Equal(t, "Success", env.Message)

	var uploaded store.MediaFile
	require.NoError(t, json.Unmarshal(env.Data, &uploaded))
	require.Equal(t, "clip.mp4", uploaded.Filename)

	resp, err = http.Get(srv.URL + "/media_files")
	require.NoError(t, err)
	env = decodeEnvelope(t, resp)
	require.Equal(t, "Media files retrieved successfully", env.Message)
	var files []store.MediaFile
	require.NoError(t, json.Unmarshal(env.Data, &files))
	require.Equal(t, []store.MediaFile{uploaded}, files)

	resp, err = http.Get(srv.URL + "/media_files/" + uploaded.ID + "/metadata")
	require.NoError(t, err)
	env = decodeEnvelope(t, resp)
	require.Equal(t, "Meta data file retrieved successfully", env.Message)
	var frames []metadata.Frame
	require.NoError(t, json.Unmarshal(env.Data, &frames))
	require.Equal(t, testFrames, frames)

	resp, err = http.Get(srv.URL + "/media_files/" + uploaded.ID + "/metadata?width=960&height=540")
	require.NoError(t, err)
	env = decodeEnvelope(t, resp)
	require.NoError(t, json.Unmarshal(env.Data, &frames))
	require.Equal(t, metadata.Frame{Timestamp: 0, X: 50, Y: 25, Width: 960, Height: 540}, frames[0])
}

func TestUploadErrors(t *testing.T) {
	testCases := []struct {
		name        string
		req         func(t *testing.T, url string) *http.Request
		wantCode    int
		wantMessage string
	}{
		{
			name: "wrong field name",
			req: func(t *testing.T, url string) *http.Request {
				return uploadRequest(t, url, "video", "clip.mp4", "data")
			},
			wantCode:    http.StatusBadRequest,
			wantMessage: "File name or field name is missing",
		},
		{
			name: "missing file name",
			req: func(t *testing.T, url string) *http.Request {
				return uploadRequest(t, url, "media_file", "", "data")
			},
			wantCode:    http.StatusBadRequest,
			wantMessage: "File name or field name is missing",
		},
		{
			name: "no parts",
			req: func(t *testing.T, url string) *http.Request {
				var body bytes.Buffer
				mw := multipart.NewWriter(&body)
				mw.Close()
				req, _ := http.NewRequest(http.MethodPost, url, &body)
				req.Header.Set("Content-Type", mw.FormDataContentType())
				return req
			},
			wantCode:    http.StatusBadRequest,
			wantMessage: "No file found in the request",
		},
		{
			name: "not multipart",
			req: func(t *testing.T, url string) *http.Request {
				req, _ := http.NewRequest(http.MethodPost, url, strings.NewReader(`{}`))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			wantCode:    http.StatusBadRequest,
			wantMessage: "No file found in the request",
		},
		{
			name: "too large",
			req: func(t *testing.T, url string) *http.Request {
				return uploadRequest(t, url, "media_file", "big.mp4", strings.Repeat("x", 2048))
			},
			wantCode:    http.StatusRequestEntityTooLarge,
			wantMessage: "File is too large",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, nil)

			resp, err := http.DefaultClient.Do(tc.req(t, srv.URL+"/media_files/upload"))
			require.NoError(t, err)
			require.Equal(t, tc.wantCode, resp.StatusCode)

			env := decodeEnvelope(t, resp)
			require.False(t, env.Status)
			require.Equal(t, tc.wantMessage, env.Message)
		})
	}
}

func TestUploadProcessingFailure(t *testing.T) {
	srv := newTestServer(t, func(context.Context, string) ([]metadata.Frame, error) {
		return nil, errors.New("no video stream")
	})

	resp, err := http.DefaultClient.Do(uploadRequest(t, srv.URL+"/media_files/upload", "media_file", "notes.txt", "not a video"))
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	env := decodeEnvelope(t, resp)
	require.Equal(t, "Failed to process video", env.Message)

	_, err = srv.store.MediaFiles()
	require.Error(t, err, "failed upload must not create a catalog")
}

func TestAsyncUploadJobSocket(t *testing.T) {
	release := make(chan struct{})
	srv := newTestServer(t, func(context.Context, string) ([]metadata.Frame, error) {
		<-release
		return testFrames, nil
	})

	resp, err := http.DefaultClient.Do(uploadRequest(t, srv.URL+"/media_files/upload?async=true", "media_file", "clip.mp4", "video"))
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var f store.MediaFile
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &f))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sockets/jobs/" + f.ID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	close(release)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var last processing.JobStatus
	for {
		var status processing.JobStatus
		if err := conn.ReadJSON(&status); err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		last = status
	}
	require.Equal(t, processing.JobStatus{State: processing.JobDone, Frames: 2}, last)
}

func TestJobSocketUnknownJob(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/sockets/jobs/" + uuid.NewString())
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetadataErrors(t *testing.T) {
	srv := newTestServer(t, nil)

	testCases := []struct {
		path     string
		wantCode int
	}{
		{path: "/media_files/" + uuid.NewString() + "/metadata", wantCode: http.StatusInternalServerError},
		{path: "/media_files/not-an-id/metadata", wantCode: http.StatusBadRequest},
		{path: "/media_files/" + uuid.NewString() + "/metadata?width=100", wantCode: http.StatusBadRequest},
		{path: "/media_files/" + uuid.NewString() + "/metadata?width=0&height=10", wantCode: http.StatusBadRequest},
	}

	for _, tc := range testCases {
		resp, err := http.Get(srv.URL + tc.path)
		require.NoError(t, err)
		require.Equal(t, tc.wantCode, resp.StatusCode, tc.path)

		env := decodeEnvelope(t, resp)
		require.False(t, env.Status)
		require.JSONEq(t, "[]", string(env.Data))
	}
}

func TestStream(t *testing.T) {
	srv := newTestServer(t, nil)

	resp, err := http.DefaultClient.Do(uploadRequest(t, srv.URL+"/media_files/upload", "media_file", "clip.mp4", "0123456789"))
	require.NoError(t, err)
	var f store.MediaFile
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, resp).Data, &f))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/media_files/"+f.ID+"/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Range", "bytes=2-5")

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "2345", string(body))

	resp, err = http.Get(srv.URL + "/media_files/" + uuid.NewString() + "/stream")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestClientAssets(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, path := range []string{"/app/", "/app/some/client/route"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode, path)
		require.Contains(t, string(body), "player", path)
	}
}
