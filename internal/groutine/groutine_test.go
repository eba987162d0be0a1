package groutine

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGo_NameIsVisibleInContext(t *testing.T) {
	got := make(chan string, 1)
	Go(context.Background(), "session-dispatch", func(ctx context.Context) {
		got <- Name(ctx)
	})
	assert.Equal(t, "session-dispatch", <-got)
}

func TestGo_NilParent(t *testing.T) {
	got := make(chan string, 1)
	//nolint:staticcheck // nil parent is part of the contract
	Go(nil, "nil-parent", func(ctx context.Context) {
		got <- Name(ctx)
	})
	assert.Equal(t, "nil-parent", <-got)
}

func TestGoWait_TracksCompletion(t *testing.T) {
	var wg sync.WaitGroup
	var mu sync.Mutex
	count := 0
	for i := 0; i < 5; i++ {
		GoWait(context.Background(), &wg, "worker", func(ctx context.Context) {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}
	wg.Wait()
	assert.Equal(t, 5, count)
}

func TestName_OutsideNamedGoroutine(t *testing.T) {
	assert.Empty(t, Name(context.Background()))
	//nolint:staticcheck // nil context is handled
	assert.Empty(t, Name(nil))
}
