package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultshare/fileshare-api/internal/logging"
)

func TestServerStartAndShutdown(t *testing.T) {
	srv := NewServer("127.0.0.1:0", http.NewServeMux(), time.Second, time.Second, logging.NewLogger(true))

	done := make(chan error, 1)
	go func() {
		done <- srv.Start()
	}()

	// Give the listener a moment to come up
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-done:
		// A graceful shutdown is not a start failure
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("server did not stop after shutdown")
	}
}
