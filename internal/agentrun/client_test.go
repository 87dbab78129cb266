package agentrun_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fahadahaf/chat-ui/internal/agentrun"
	"github.com/fahadahaf/chat-ui/internal/chat"
	"github.com/fahadahaf/chat-ui/internal/log"
)

func TestClient_Run_StreamsChunks(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/runs" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding run request: %v", err)
		}
		if req["stream"] != true || req["message"] != "hi" {
			t.Errorf("run payload = %+v", req)
		}

		w.Header().Set("Content-Type", "application/json")
		flusher := w.(http.Flusher)
		for _, chunk := range []string{
			`{"event":"RunStarted","session_id":"s-1"}`,
			`{"event":"RunResponseContent","content":"Hel"}`,
			`{"event":"RunResponseContent","content":"Hello"}`,
			`{"event":"RunCompleted","content":"Hello!"}`,
		} {
			_, _ = w.Write([]byte(chunk + "\n"))
			flusher.Flush()
		}
	}))
	defer srv.Close()

	client, err := agentrun.New(srv.URL, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	var kinds []chat.EventKind
	for chunk, err := range client.Run(context.Background(), chat.RunRequest{Message: "hi"}) {
		if err != nil {
			t.Fatalf("stream error: %v", err)
		}
		kinds = append(kinds, chunk.Kind())
	}

	want := []chat.EventKind{
		chat.EventRunStarted,
		chat.EventRunContent,
		chat.EventRunContent,
		chat.EventRunCompleted,
	}
	if len(kinds) != len(want) {
		t.Fatalf("chunks = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("chunk %d kind = %q, want %q", i, kinds[i], want[i])
		}
	}
}

func TestClient_Run_Non200(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "runtime busy", http.StatusBadGateway)
	}))
	defer srv.Close()

	client, _ := agentrun.New(srv.URL, log.NewNop())

	var sawErr bool
	for _, err := range client.Run(context.Background(), chat.RunRequest{Message: "hi"}) {
		if err != nil {
			sawErr = true
		}
	}
	if !sawErr {
		t.Error("expected an error for a non-200 response")
	}
}

func TestClient_Run_MalformedChunk(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"event":"RunStarted","session_id":"s-1"}` + "\n"))
		_, _ = w.Write([]byte(`{"event":"NotARealEvent"}` + "\n"))
	}))
	defer srv.Close()

	client, _ := agentrun.New(srv.URL, log.NewNop())

	var chunks int
	var lastErr error
	for chunk, err := range client.Run(context.Background(), chat.RunRequest{Message: "hi"}) {
		if err != nil {
			lastErr = err
			continue
		}
		if chunk != nil {
			chunks++
		}
	}
	if chunks != 1 {
		t.Errorf("good chunks = %d, want 1", chunks)
	}
	if lastErr == nil {
		t.Error("expected an error for the unknown event kind")
	}
}

func TestClient_Run_EarlyBreak(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		for i := 0; i < 100; i++ {
			_, _ = w.Write([]byte(`{"event":"RunResponseContent","content":"x"}` + "\n"))
		}
	}))
	defer srv.Close()

	client, _ := agentrun.New(srv.URL, log.NewNop())

	var seen int
	for _, err := range client.Run(context.Background(), chat.RunRequest{Message: "hi"}) {
		if err != nil {
			t.Fatal(err)
		}
		seen++
		if seen == 3 {
			break
		}
	}
	if seen != 3 {
		t.Errorf("consumed %d chunks, want 3", seen)
	}
}

func TestNew_RequiresBaseURL(t *testing.T) {
	t.Parallel()

	if _, err := agentrun.New("", log.NewNop()); err == nil {
		t.Error("expected error for empty base URL")
	}
}
