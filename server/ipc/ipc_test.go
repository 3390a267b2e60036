package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
	"github.com/vasedge/modelhost/pkg/vaswire"
)

// echoHandler frames the request back, or reports a protocol error when the
// payload says so.
type echoHandler struct{}

func (echoHandler) Handle(requestBytes []byte) ([]byte, error) {
	if string(requestBytes) == "protocol-error" {
		return nil, errors.New("unanswerable")
	}
	return append([]byte("echo:"), requestBytes...), nil
}

func startServer(t *testing.T) *Server {
	dir, err := os.MkdirTemp("/tmp", "vas_sock_*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	s := NewServer(logs.NewTestingLog(t), dir, "testmodel", echoHandler{})
	require.NoError(t, s.Start())
	t.Cleanup(func() { s.Stop(time.Second) })
	return s
}

func TestSocketPath(t *testing.T) {
	require.Equal(t, "/tmp/vas_model_yolov8n.sock", SocketPath("/tmp", "yolov8n"))
}

func TestServerBindsWithOwnerOnlyPermissions(t *testing.T) {
	s := startServer(t)
	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestRequestResponse(t *testing.T) {
	s := startServer(t)
	conn, err := net.Dial("unix", s.Path())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, vaswire.WriteMessage(conn, []byte("hello")))
	resp, err := vaswire.ReadMessage(conn)
	require.NoError(t, err)
	require.Equal(t, "echo:hello", string(resp))
}

func TestPipelinedRequestsOneResponseEach(t *testing.T) {
	s := startServer(t)
	conn, err := net.Dial("unix", s.Path())
	require.NoError(t, err)
	defer conn.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, vaswire.WriteMessage(conn, []byte(fmt.Sprintf("msg-%v", i))))
	}
	for i := 0; i < 5; i++ {
		resp, err := vaswire.ReadMessage(conn)
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("echo:msg-%v", i), string(resp))
	}
}

func TestOversizeMessageClosesConnection(t *testing.T) {
	s := startServer(t)
	conn, err := net.Dial("unix", s.Path())
	require.NoError(t, err)
	defer conn.Close()

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], vaswire.MaxMessageSize+1)
	_, err = conn.Write(prefix[:])
	require.NoError(t, err)

	// No response; the server hangs up
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = vaswire.ReadMessage(conn)
	require.Error(t, err)
}

func TestProtocolErrorClosesConnection(t *testing.T) {
	s := startServer(t)
	conn, err := net.Dial("unix", s.Path())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, vaswire.WriteMessage(conn, []byte("protocol-error")))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = vaswire.ReadMessage(conn)
	require.Error(t, err)
}

func TestConcurrentConnections(t *testing.T) {
	s := startServer(t)
	const nClients = 8
	const nRequests = 20

	errc := make(chan error, nClients)
	for c := 0; c < nClients; c++ {
		go func(c int) {
			for i := 0; i < nRequests; i++ {
				conn, err := net.Dial("unix", s.Path())
				if err != nil {
					errc <- err
					return
				}
				msg := fmt.Sprintf("client-%v-req-%v", c, i)
				if err := vaswire.WriteMessage(conn, []byte(msg)); err != nil {
					conn.Close()
					errc <- err
					return
				}
				resp, err := vaswire.ReadMessage(conn)
				conn.Close()
				if err != nil {
					errc <- err
					return
				}
				if string(resp) != "echo:"+msg {
					errc <- fmt.Errorf("cross-talk: sent %v, got %v", msg, string(resp))
					return
				}
			}
			errc <- nil
		}(c)
	}
	for c := 0; c < nClients; c++ {
		require.NoError(t, <-errc)
	}
}

func TestStopUnlinksSocket(t *testing.T) {
	dir, err := os.MkdirTemp("/tmp", "vas_sock_*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	s := NewServer(logs.NewTestingLog(t), dir, "stopme", echoHandler{})
	require.NoError(t, s.Start())
	require.FileExists(t, s.Path())
	s.Stop(time.Second)
	require.NoFileExists(t, s.Path())

	// A stale socket from a dead process does not block the next bind
	require.NoError(t, os.WriteFile(s.Path(), []byte{}, 0600))
	s2 := NewServer(logs.NewTestingLog(t), dir, "stopme", echoHandler{})
	require.NoError(t, s2.Start())
	s2.Stop(time.Second)
}
