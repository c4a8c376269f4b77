package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/braggingrights/pkg/llm"
)

type fakeRuntime struct {
	local   []string
	pulls   atomic.Int32
	failing bool
}

func (f *fakeRuntime) server(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/tags":
			models := make([]map[string]string, 0, len(f.local))
			for _, name := range f.local {
				models = append(models, map[string]string{"name": name, "model": name})
			}
			json.NewEncoder(w).Encode(map[string]any{"models": models})
		case "/api/pull":
			f.pulls.Add(1)
			var req struct {
				Model string `json:"model"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			if f.failing {
				fmt.Fprintln(w, `{"error":"pull model manifest: file does not exist"}`)
				return
			}
			fmt.Fprintln(w, `{"status":"pulling manifest"}`)
			fmt.Fprintln(w, `{"status":"downloading","digest":"sha256:abc","total":100,"completed":100}`)
			fmt.Fprintln(w, `{"status":"success"}`)
			f.local = append(f.local, llm.NormalizeModel(req.Model))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestPullIsIdempotent(t *testing.T) {
	runtime := &fakeRuntime{}
	server := runtime.server(t)

	var statuses []string
	puller, err := llm.NewPuller(llm.PullerConfig{
		BaseURL: server.URL,
		OnProgress: func(model, status string, completed, total int64) {
			statuses = append(statuses, model+" "+status)
		},
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, puller.Pull(ctx, "llama3"))
	require.NoError(t, puller.Pull(ctx, "llama3"))
	require.NoError(t, puller.Pull(ctx, "llama3:latest"))

	assert.Equal(t, int32(1), runtime.pulls.Load())
	assert.Equal(t, []string{
		"llama3:latest pulling manifest",
		"llama3:latest downloading",
		"llama3:latest success",
	}, statuses)
}

func TestPullSkipsModelsAlreadyPresent(t *testing.T) {
	runtime := &fakeRuntime{local: []string{"nomic-embed-text:latest"}}
	server := runtime.server(t)

	puller, err := llm.NewPuller(llm.PullerConfig{BaseURL: server.URL})
	require.NoError(t, err)

	require.NoError(t, puller.Pull(context.Background(), "nomic-embed-text"))
	assert.Equal(t, int32(0), runtime.pulls.Load())

	// a fresh puller still sees the model on the runtime
	other, err := llm.NewPuller(llm.PullerConfig{BaseURL: server.URL})
	require.NoError(t, err)
	require.NoError(t, other.Pull(context.Background(), "nomic-embed-text"))
	assert.Equal(t, int32(0), runtime.pulls.Load())
}

func TestPullFailure(t *testing.T) {
	runtime := &fakeRuntime{failing: true}
	server := runtime.server(t)

	puller, err := llm.NewPuller(llm.PullerConfig{BaseURL: server.URL})
	require.NoError(t, err)

	err = puller.Pull(context.Background(), "no-such-model")
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrModelUnavailable))

	// failures are not remembered as pulled
	err = puller.Pull(context.Background(), "no-such-model")
	assert.True(t, errors.Is(err, llm.ErrModelUnavailable))
	assert.Equal(t, int32(2), runtime.pulls.Load())
}

func TestPullUnreachableRuntime(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	puller, err := llm.NewPuller(llm.PullerConfig{BaseURL: url})
	require.NoError(t, err)

	err = puller.Pull(context.Background(), "llama3")
	assert.True(t, errors.Is(err, llm.ErrModelUnavailable))
}

func TestNormalizeModel(t *testing.T) {
	tests := map[string]string{
		"llama3":                  "llama3:latest",
		"llama3:8b":               "llama3:8b",
		" nomic-embed-text ":      "nomic-embed-text:latest",
		"registry:5000/org/model": "registry:5000/org/model:latest",
		"registry:5000/org/m:v1":  "registry:5000/org/m:v1",
		"":                        "",
	}
	for in, want := range tests {
		assert.Equal(t, want, llm.NormalizeModel(in), in)
	}
}
