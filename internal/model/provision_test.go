package model

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var artifact = []byte("onnx-bytes")

type countingLoader struct {
	calls atomic.Int32
	err   error
	seen  []byte
}

func (l *countingLoader) load(path string) (Backend, error) {
	l.calls.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	l.seen = data
	return newFakeBackend(0.2, 0.3, 0.5), nil
}

func TestProvisioner_DownloadsOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(artifact)
	}))
	defer srv.Close()

	localPath := filepath.Join(t.TempDir(), "models", "model.onnx")
	loader := &countingLoader{}
	p := NewProvisioner(srv.URL+"/model.onnx", localPath, loader.load, ProvisionerOptions{})

	first, err := p.Ensure(context.Background())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := p.Ensure(context.Background())
		require.NoError(t, err)
		assert.Same(t, first, again)
	}

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, int64(1), p.Downloads())
	assert.Equal(t, int32(1), loader.calls.Load())
	assert.Equal(t, artifact, loader.seen)

	onDisk, err := os.ReadFile(localPath)
	require.NoError(t, err)
	assert.Equal(t, artifact, onDisk)

	// no partial files left behind
	entries, err := os.ReadDir(filepath.Dir(localPath))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestProvisioner_UsesExistingArtifact(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	localPath := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, os.WriteFile(localPath, artifact, 0o644))

	loader := &countingLoader{}
	p := NewProvisioner(srv.URL, localPath, loader.load, ProvisionerOptions{})

	_, err := p.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(0), hits.Load())
	assert.Equal(t, int64(0), p.Downloads())
	assert.Equal(t, int32(1), loader.calls.Load())
}

func TestProvisioner_DownloadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	localPath := filepath.Join(t.TempDir(), "model.onnx")
	loader := &countingLoader{}
	p := NewProvisioner(srv.URL, localPath, loader.load, ProvisionerOptions{})

	_, err := p.Ensure(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDownload)
	assert.Equal(t, int32(0), loader.calls.Load())
	assert.NoFileExists(t, localPath)

	// the failure is final for the process
	_, again := p.Ensure(context.Background())
	assert.Equal(t, err, again)
	assert.Equal(t, int64(1), p.Downloads())
}

func TestProvisioner_HTMLWithoutConfirmForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html><body>Quota exceeded</body></html>")
	}))
	defer srv.Close()

	p := NewProvisioner(srv.URL, filepath.Join(t.TempDir(), "model.onnx"), (&countingLoader{}).load, ProvisionerOptions{})
	_, err := p.Ensure(context.Background())
	assert.ErrorIs(t, err, ErrDownload)
}

func TestProvisioner_UnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewProvisioner(url, filepath.Join(t.TempDir(), "model.onnx"), (&countingLoader{}).load, ProvisionerOptions{})
	_, err := p.Ensure(context.Background())
	assert.ErrorIs(t, err, ErrDownload)
}

func TestProvisioner_FollowsDriveConfirmation(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/uc":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprintf(w, `<html><body>
<form id="download-form" action="%s/download" method="get">
<input type="submit" id="uc-download-link" value="Download anyway"/>
<input type="hidden" name="id" value="abc">
<input type="hidden" name="export" value="download">
<input type="hidden" name="confirm" value="t">
<input type="hidden" name="uuid" value="1234-5678">
</form></body></html>`, srv.URL)
		case "/download":
			if r.URL.Query().Get("confirm") != "t" || r.URL.Query().Get("uuid") != "1234-5678" {
				http.Error(w, "missing confirmation", http.StatusForbidden)
				return
			}
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Write(artifact)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	localPath := filepath.Join(t.TempDir(), "model.onnx")
	loader := &countingLoader{}
	p := NewProvisioner(srv.URL+"/uc?id=abc", localPath, loader.load, ProvisionerOptions{})

	_, err := p.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, artifact, loader.seen)
	assert.Equal(t, int64(1), p.Downloads())
}

func TestProvisioner_DeserializationError(t *testing.T) {
	localPath := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, os.WriteFile(localPath, []byte("corrupt"), 0o644))

	loader := &countingLoader{err: errors.New("protobuf parsing failed")}
	p := NewProvisioner("unused", localPath, loader.load, ProvisionerOptions{})

	_, err := p.Ensure(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeserialization)
	assert.Contains(t, err.Error(), "protobuf parsing failed")
}

func TestRemoteURL(t *testing.T) {
	assert.Equal(t, "https://example.com/m.onnx", RemoteURL("https://example.com/m.onnx"))
	assert.Equal(t, "http://localhost:9000/m", RemoteURL("http://localhost:9000/m"))
	assert.Equal(t,
		"https://drive.google.com/uc?export=download&id=1cFVZwfNNpbp80YAXs_-SRxKhjSQjdBMf",
		RemoteURL("1cFVZwfNNpbp80YAXs_-SRxKhjSQjdBMf"))
}

func TestConfirmURL(t *testing.T) {
	page := []byte(`<form id="download-form" action="https://drive.usercontent.google.com/download" method="get">` +
		`<input type="hidden" name="id" value="xyz"><input type="hidden" name="confirm" value="t">` +
		`<input type="hidden" name="uuid" value="u&amp;1"></form>`)

	got, ok := confirmURL(page)
	require.True(t, ok)
	assert.Equal(t, "https://drive.usercontent.google.com/download?confirm=t&id=xyz&uuid=u%261", got)

	_, ok = confirmURL([]byte(`<form id="download-form" action="https://x/download"></form>`))
	assert.False(t, ok)
}
