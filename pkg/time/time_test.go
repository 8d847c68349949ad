package time

import (
	"context"
	"testing"
	"time"
)

func TestTickWithCtxDelivers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := TickWithCtx(ctx, time.Millisecond)

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a tick within a second")
	}
}

func TestTickWithCtxClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := TickWithCtx(ctx, time.Hour)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel close, got a tick")
		}
	case <-time.After(time.Second):
		t.Fatal("channel was not closed after cancel")
	}
}
