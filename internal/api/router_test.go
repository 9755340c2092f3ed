package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"hdsfetch/internal/api"
	"hdsfetch/internal/fault"
	"hdsfetch/internal/hds"
	"hdsfetch/internal/logger"
	"hdsfetch/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingFetcher reports one update and waits to be stopped.
type blockingFetcher struct{}

func (blockingFetcher) Fetch(ctx context.Context, req hds.Request, dest io.Writer, sink hds.ProgressSink) error {
	sink.SetFraction(0.25)
	sink.SetSize(100)
	<-ctx.Done()
	return fault.Cancelled(ctx.Err())
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// TestAPI_Downloads tests listing, inspecting and stopping downloads.
func TestAPI_Downloads(t *testing.T) {
	mgr := session.NewManager(blockingFetcher{}, logger.Discard())
	defer mgr.StopAll()

	d, err := mgr.Start(context.Background(), "out/clip.flv", hds.Request{MediaPath: "clip"}, nopWriteCloser{io.Discard})
	require.NoError(t, err)
	first := <-d.Events()
	require.Equal(t, session.KindProgress, first.Kind)

	server := httptest.NewServer(api.New(mgr, logger.Discard()))
	defer server.Close()

	t.Run("List", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/downloads")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		var statuses []api.Status
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&statuses))
		require.Len(t, statuses, 1)
		assert.Equal(t, api.Status{ID: "out/clip.flv", State: "progress", Fraction: 0.25, Bytes: 100}, statuses[0])
	})

	t.Run("Get Not Found", func(t *testing.T) {
		resp, err := http.Get(server.URL + "/downloads/unknown.flv")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("Stop", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodDelete, server.URL+"/downloads/out/clip.flv", nil)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		d.Wait()
		resp, err = http.Get(server.URL + "/downloads/out/clip.flv")
		require.NoError(t, err)
		defer resp.Body.Close()

		var status api.Status
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
		assert.Equal(t, "cancelled", status.State)
		assert.Contains(t, status.Error, "cancelled")
	})

	t.Run("Stop Not Found", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodDelete, server.URL+"/downloads/unknown.flv", nil)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
