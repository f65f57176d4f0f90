package flowevents

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/upa-network/flowchaind/internal/flow"
)

func TestPublishNotifiesAllHandlers(t *testing.T) {
	d := New(zap.NewNop())

	var mu sync.Mutex
	var got []Kind
	done := make(chan struct{}, 2)

	record := func(ev Event) {
		mu.Lock()
		got = append(got, ev.Kind)
		mu.Unlock()
		done <- struct{}{}
	}
	d.OnEvent(record)
	d.OnEvent(record)

	f := flow.New("vrfA", []string{"fn1"}, "10.0.0.0/24", "")
	d.Publish(Event{Kind: Added, Flow: f})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for handler")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != Added || got[1] != Added {
		t.Errorf("got %v, want two Added events", got)
	}
}

func TestKindString(t *testing.T) {
	tests := map[Kind]string{
		Added:      "added",
		Deleted:    "deleted",
		Overridden: "overridden",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
