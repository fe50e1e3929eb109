package mailer

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsplan/obsplan/pkg/config"
	"github.com/obsplan/obsplan/pkg/logger"
)

func newTestMailer(t *testing.T, addr string) *Mailer {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	log := logger.New("mailer-test", "test")
	log.SetOutput(io.Discard)

	return New(config.SMTPConfig{Host: host, Port: port, From: "noreply@example.com"}, log)
}

func TestSendLoginLinkReturnsOnCancellation(t *testing.T) {
	// A server that accepts the connection but never sends a greeting,
	// so the SMTP conversation hangs past the deadline.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	m := newTestMailer(t, ln.Addr().String())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = m.SendLoginLink(ctx, "alice@example.com", "login-id", "token")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 3*time.Second)

	select {
	case conn := <-accepted:
		conn.Close()
	default:
	}
}

func TestSendLoginLinkDialHonorsCancelledContext(t *testing.T) {
	m := newTestMailer(t, "127.0.0.1:1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.SendLoginLink(ctx, "alice@example.com", "login-id", "token")
	require.Error(t, err)
}
