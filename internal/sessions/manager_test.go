package sessions

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Circle-Cat/edu-agent/internal/agent"
	"github.com/Circle-Cat/edu-agent/internal/runtime"
	"github.com/Circle-Cat/edu-agent/internal/store"
)

type nopRuntime struct{}

func (nopRuntime) Run(context.Context, runtime.Invocation) (<-chan runtime.Event, error) {
	ch := make(chan runtime.Event)
	close(ch)
	return ch, nil
}

func countingFactory(created *atomic.Int64) Factory {
	state := store.NewStateStore()
	return func(key Key) *agent.Session {
		created.Add(1)
		return agent.NewSession(agent.Config{
			AppName:   key.AppName,
			UserID:    key.UserID,
			SessionID: key.SessionID,
			Selector:  agent.ModalitySelector{TextModel: "t", AudioModel: "a"},
			Runtime:   nopRuntime{},
			History:   state,
		})
	}
}

func TestGetOrCreateIdempotent(t *testing.T) {
	var created atomic.Int64
	m := NewManager(countingFactory(&created), 0)
	key := Key{AppName: "multimodal_app", UserID: "demo_user", SessionID: "s-1"}

	first, err := m.GetOrCreate(context.Background(), key)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	second, err := m.GetOrCreate(context.Background(), key)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	if first != second {
		t.Error("GetOrCreate() returned distinct handles for the same key")
	}
	if got := created.Load(); got != 1 {
		t.Errorf("factory ran %d times, want 1", got)
	}
}

func TestGetOrCreateDistinctKeys(t *testing.T) {
	var created atomic.Int64
	m := NewManager(countingFactory(&created), 0)

	a, _ := m.GetOrCreate(context.Background(), Key{AppName: "app", UserID: "u", SessionID: "s-1"})
	b, _ := m.GetOrCreate(context.Background(), Key{AppName: "app", UserID: "u", SessionID: "s-2"})
	if a == b {
		t.Error("distinct session ids share a handle")
	}
	if got := m.Len(); got != 2 {
		t.Errorf("Len() = %d, want 2", got)
	}
}

// Two concurrent first-time requests for the same unseen session id must
// end up sharing exactly one session.
func TestGetOrCreateConcurrentFirstRequests(t *testing.T) {
	var created atomic.Int64
	m := NewManager(countingFactory(&created), 0)
	key := Key{AppName: "multimodal_app", UserID: "demo_user", SessionID: "race"}

	const n = 32
	handles := make([]*agent.Session, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			s, err := m.GetOrCreate(context.Background(), key)
			if err != nil {
				t.Errorf("GetOrCreate() error = %v", err)
				return
			}
			handles[i] = s
		}(i)
	}
	close(start)
	wg.Wait()

	if got := created.Load(); got != 1 {
		t.Errorf("factory ran %d times under contention, want 1", got)
	}
	if got := m.Len(); got != 1 {
		t.Errorf("Len() = %d, want 1", got)
	}
	for i := 1; i < n; i++ {
		if handles[i] != handles[0] {
			t.Fatalf("request %d got a different handle", i)
		}
	}
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	var created atomic.Int64
	m := NewManager(countingFactory(&created), 50*time.Millisecond)

	if _, err := m.GetOrCreate(context.Background(), Key{AppName: "app", UserID: "u", SessionID: "idle"}); err != nil {
		t.Fatal(err)
	}
	m.sweep(time.Now().Add(time.Second))
	if got := m.Len(); got != 0 {
		t.Errorf("Len() after sweep = %d, want 0", got)
	}
}

func TestSweepKeepsActiveSessions(t *testing.T) {
	var created atomic.Int64
	m := NewManager(countingFactory(&created), time.Hour)

	if _, err := m.GetOrCreate(context.Background(), Key{AppName: "app", UserID: "u", SessionID: "act"}); err != nil {
		t.Fatal(err)
	}
	m.sweep(time.Now().Add(time.Minute))
	if got := m.Len(); got != 1 {
		t.Errorf("Len() after sweep = %d, want 1", got)
	}
}
