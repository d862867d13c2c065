package chatclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeServer struct {
	mu        sync.Mutex
	messages  []Message
	markReads int
	failList  bool
}

func (f *fakeServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/chat/threads", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		fail := f.failList
		f.mu.Unlock()
		if fail {
			writeJSON(w, map[string]interface{}{"success": false, "message": "boom"})
			return
		}
		writeJSON(w, map[string]interface{}{
			"success": true,
			"data":    []Thread{{ID: "t1", UnreadCount: 1}},
		})
	})

	mux.HandleFunc("/api/chat/threads/t1/messages", func(w http.ResponseWriter, r *http.Request) {
		after := 0
		if v := r.URL.Query().Get("after_id"); v != "" {
			after, _ = strconv.Atoi(v)
		}

		f.mu.Lock()
		var out []Message
		for _, m := range f.messages {
			if int(m.ID) > after {
				out = append(out, m)
			}
		}
		f.mu.Unlock()

		writeJSON(w, map[string]interface{}{"success": true, "data": out})
	})

	mux.HandleFunc("/api/chat/threads/t1/read", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.markReads++
		f.mu.Unlock()
		writeJSON(w, map[string]interface{}{"success": true})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestPollerDeliversNewMessagesOnce(t *testing.T) {
	fake := &fakeServer{
		messages: []Message{
			{ID: 1, ThreadID: "t1", Body: "Hello"},
			{ID: 2, ThreadID: "t1", Body: "Hi back"},
		},
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	var mu sync.Mutex
	var got []Message
	var threadTicks int

	p := &Poller{
		Client:          New(srv.URL, "tok"),
		MessageInterval: 10 * time.Millisecond,
		ThreadInterval:  20 * time.Millisecond,
		OnMessages: func(threadID string, msgs []Message) {
			mu.Lock()
			got = append(got, msgs...)
			mu.Unlock()
		},
		OnThreads: func(threads []Thread) {
			mu.Lock()
			threadTicks++
			mu.Unlock()
		},
	}
	p.Open("t1")

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	mu.Lock()
	defer mu.Unlock()

	// history arrives exactly once, the cursor filters repeats
	require.Len(t, got, 2)
	assert.Equal(t, "Hello", got[0].Body)
	assert.Equal(t, "Hi back", got[1].Body)

	assert.Greater(t, threadTicks, 0)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	// every successful fetch of the open thread acknowledges it
	assert.Greater(t, fake.markReads, 0)
}

func TestPollerPicksUpLateMessages(t *testing.T) {
	fake := &fakeServer{
		messages: []Message{{ID: 1, ThreadID: "t1", Body: "first"}},
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	var mu sync.Mutex
	var got []Message

	p := &Poller{
		Client:          New(srv.URL, "tok"),
		MessageInterval: 10 * time.Millisecond,
		OnMessages: func(threadID string, msgs []Message) {
			mu.Lock()
			got = append(got, msgs...)
			mu.Unlock()
		},
	}
	p.Open("t1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	time.Sleep(40 * time.Millisecond)
	fake.mu.Lock()
	fake.messages = append(fake.messages, Message{ID: 2, ThreadID: "t1", Body: "second"})
	fake.mu.Unlock()
	time.Sleep(40 * time.Millisecond)

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Body)
	assert.Equal(t, "second", got[1].Body)
}

func TestPollerSurvivesFailedTicks(t *testing.T) {
	fake := &fakeServer{failList: true}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	var mu sync.Mutex
	var errs int
	var lists int

	p := &Poller{
		Client:         New(srv.URL, "tok"),
		ThreadInterval: 10 * time.Millisecond,
		OnThreads: func(threads []Thread) {
			mu.Lock()
			lists++
			mu.Unlock()
		},
		OnError: func(err error) {
			mu.Lock()
			errs++
			if errs == 2 {
				// recover the backend after a couple of failures
				fake.mu.Lock()
				fake.failList = false
				fake.mu.Unlock()
			}
			mu.Unlock()
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, errs, 2)
	// the loop kept going and succeeded once the backend came back
	assert.Greater(t, lists, 0)
}

func TestPollerStopsOnCancel(t *testing.T) {
	fake := &fakeServer{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	p := &Poller{
		Client:          New(srv.URL, "tok"),
		MessageInterval: 5 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop on cancel")
	}
}

func TestClientErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		writeJSON(w, map[string]interface{}{"success": false, "message": "forbidden: not a thread participant"})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok")
	_, err := c.FetchMessages(context.Background(), "t1", 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a thread participant")
	assert.Contains(t, err.Error(), "403")
}
