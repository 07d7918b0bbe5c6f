package socketclient

import (
	"context"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/codefionn/tokengate/internal/challenge"
	"github.com/codefionn/tokengate/internal/consts"
	"github.com/codefionn/tokengate/internal/keystore"
	"github.com/codefionn/tokengate/internal/messagelog"
	"github.com/codefionn/tokengate/internal/socketserver"
	"github.com/codefionn/tokengate/internal/wire"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) (*socketserver.Server, *messagelog.FileSink) {
	t.Helper()

	keys, err := keystore.Generate()
	require.NoError(t, err)
	t.Cleanup(keys.Destroy)

	sink, err := messagelog.OpenFile(filepath.Join(t.TempDir(), "server_comm.log"))
	require.NoError(t, err)
	writer, err := messagelog.NewWriter(context.Background(), sink)
	require.NoError(t, err)
	t.Cleanup(func() { _ = writer.Close(context.Background()) })

	srv, err := socketserver.NewServer(socketserver.Config{Host: "127.0.0.1"}, socketserver.Handlers{
		Issue:    challenge.NewIssuer(keys, 0, nil),
		Validate: challenge.NewValidator(keys, writer, challenge.ValidatorConfig{}, nil),
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop() })
	return srv, sink
}

func configFor(srv *socketserver.Server) *Config {
	cfg := DefaultConfig()
	cfg.IssuePort = srv.Addr(socketserver.Issue).(*net.TCPAddr).Port
	cfg.ValidatePort = srv.Addr(socketserver.Validate).(*net.TCPAddr).Port
	cfg.IOTimeout = 2 * time.Second
	return cfg
}

func TestRunEndToEnd(t *testing.T) {
	srv, sink := startServer(t)

	r, err := NewRequester(configFor(srv))
	require.NoError(t, err)

	var mu sync.Mutex
	var states []State
	r.SetStateChangedCallback(func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, StateDone, r.GetState())
	mu.Lock()
	assert.Equal(t, []State{StateAwaitToken, StateAwaitAck, StateDone}, states)
	mu.Unlock()

	id, err := uuid.Parse(string(r.ID()))
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())

	require.Eventually(t, func() bool {
		entries, err := sink.Entries(context.Background())
		return err == nil && len(entries) == 1 && string(entries[0].Message) == consts.DefaultClientMessage
	}, 2*time.Second, 10*time.Millisecond)

	assert.ErrorIs(t, r.Run(context.Background()), ErrAlreadyRun)
}

func TestTwoClientsInSequence(t *testing.T) {
	srv, sink := startServer(t)

	for _, msg := range []string{"first", "second"} {
		cfg := configFor(srv)
		cfg.Message = msg
		r, err := NewRequester(cfg)
		require.NoError(t, err)
		require.NoError(t, r.Run(context.Background()))
	}

	require.Eventually(t, func() bool {
		entries, err := sink.Entries(context.Background())
		return err == nil && len(entries) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunFailsWithoutServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	cfg := DefaultConfig()
	cfg.IssuePort = port
	cfg.ValidatePort = port
	cfg.ConnectTimeout = time.Second
	r, err := NewRequester(cfg)
	require.NoError(t, err)

	err = r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect")
	assert.Equal(t, StateAwaitToken, r.GetState())
}

// fakeIssuer answers every connection with reply and closes it.
func fakeIssuer(t *testing.T, reply func(net.Conn)) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_, _ = wire.ReadFrame(conn, 1024)
			reply(conn)
			conn.Close()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestRequestTokenFailures(t *testing.T) {
	tests := []struct {
		name  string
		reply func(net.Conn)
	}{
		{"closes without reply", func(net.Conn) {}},
		{"empty token", func(c net.Conn) { _ = wire.WriteFrame(c, nil) }},
		{"truncated token", func(c net.Conn) { _, _ = c.Write([]byte{0x10, 'x'}) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.IssuePort = fakeIssuer(t, tt.reply)
			r, err := NewRequester(cfg)
			require.NoError(t, err)

			_, err = r.RequestToken(context.Background(), []byte("abc-123"))
			assert.Error(t, err)
		})
	}
}

func TestSubmitRejectsEmptyFields(t *testing.T) {
	r, err := NewRequester(DefaultConfig())
	require.NoError(t, err)

	err = r.Submit(context.Background(), []byte("id"), nil, []byte("msg"))
	assert.ErrorIs(t, err, wire.ErrEmptyField)
}

func TestNewRequesterValidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Message = ""
	_, err := NewRequester(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.IssuePort = 0
	_, err = NewRequester(cfg)
	assert.Error(t, err)

	r, err := NewRequester(nil)
	require.NoError(t, err)
	assert.Equal(t, StateInit, r.GetState())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "init", StateInit.String())
	assert.Equal(t, "await_token", StateAwaitToken.String())
	assert.Equal(t, "await_ack", StateAwaitAck.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "unknown", State(42).String())
}
