package main

import (
	"context"
	"flag"
	"io"
	"net"
	"net/http"
	"os"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greeting-service/internal/config"
)

func TestMain(m *testing.M) {
	flag.Parse()
	if !testing.Verbose() {
		log.SetOutput(io.Discard)
	}
	os.Exit(m.Run())
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestRunHandlerBindFailure(t *testing.T) {
	held, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer held.Close()

	done := make(chan error, 1)
	go func() {
		done <- runHandler(context.Background(), "public", held.Addr().String(), http.NotFoundHandler())
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		var opErr *net.OpError
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, "listen", opErr.Op)
		assert.Contains(t, err.Error(), "public listener")
	case <-time.After(time.Second):
		t.Fatal("runHandler kept running on an address already in use")
	}
}

func TestRunHandlerGracefulShutdown(t *testing.T) {
	addr := freeAddr(t)

	entered := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			close(entered)
			time.Sleep(50 * time.Millisecond)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- runHandler(ctx, "public", addr, handler)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusNoContent
	}, time.Second, 5*time.Millisecond)

	slow := make(chan int, 1)
	go func() {
		resp, err := http.Get("http://" + addr + "/slow")
		if !assert.NoError(t, err) {
			slow <- 0
			return
		}
		resp.Body.Close()
		slow <- resp.StatusCode
	}()
	<-entered

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runHandler did not return after cancellation")
	}
	assert.Equal(t, http.StatusNoContent, <-slow)

	_, err := http.Get("http://" + addr + "/")
	assert.Error(t, err)
}

func TestSetupLogging(t *testing.T) {
	defer log.SetFormatter(log.StandardLogger().Formatter)
	defer log.SetLevel(log.GetLevel())

	setupLogging(&config.Config{LogFormat: "text", LogLevel: "debug"})
	assert.IsType(t, &log.TextFormatter{}, log.StandardLogger().Formatter)
	assert.Equal(t, log.DebugLevel, log.GetLevel())

	setupLogging(&config.Config{LogFormat: "json", LogLevel: "warn"})
	assert.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)
	assert.Equal(t, log.WarnLevel, log.GetLevel())
}
