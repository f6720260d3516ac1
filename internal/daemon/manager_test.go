// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestManagerServeAndShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	m := NewManager("127.0.0.1:0", handler, zerolog.Nop())

	var mu sync.Mutex
	var order []string
	m.RegisterShutdownHook("first", func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, "first")
		return nil
	})
	m.RegisterShutdownHook("second", func(context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, "second")
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return m.Addr() != nil }, 5*time.Second, 10*time.Millisecond)

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get(fmt.Sprintf("http://%s/", m.Addr()))
	require.NoError(t, err)
	resp.Body.Close()
	client.CloseIdleConnections()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not shut down")
	}

	// Hooks run in reverse registration order.
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestManagerDoubleStart(t *testing.T) {
	m := NewManager("127.0.0.1:0", http.NotFoundHandler(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	require.Eventually(t, func() bool { return m.Addr() != nil }, 5*time.Second, 10*time.Millisecond)

	assert.Error(t, m.Run(ctx))

	cancel()
	<-done
}
