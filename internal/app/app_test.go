package app

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownBeforeServe(t *testing.T) {
	server := NewServer(context.Background())
	assert.NotNil(t, server.Logger())
	assert.NotPanics(t, func() { server.Shutdown(time.Second) })

	// a server registered after shutdown must not be started
	assert.False(t, server.attach(nil, &http.Server{Addr: "127.0.0.1:0"}))
}

func TestAttachAfterContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	server := NewServer(ctx)
	cancel()

	assert.False(t, server.attach(nil, &http.Server{Addr: "127.0.0.1:0"}))
}

func TestShutdownStopsListeningServer(t *testing.T) {
	server := NewServer(context.Background())
	srv := &http.Server{Addr: "127.0.0.1:0", ReadHeaderTimeout: time.Second}
	require.True(t, server.attach(nil, srv))

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe() }()

	go func() { _ = server.Logger() }()
	server.Shutdown(time.Second)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
