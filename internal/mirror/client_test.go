package mirror

import (
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twistin/proxyspace-hydra/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func listen(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestClient_SendBeforeOpen(t *testing.T) {
	client := New(Config{Host: "127.0.0.1", Port: 12345}, testLogger())

	err := client.Send("/a", []protocol.TypedArg{{Tag: protocol.TagFloat32, Value: 1.0}})
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestClient_SendReachesPeer(t *testing.T) {
	peer := listen(t)
	port := peer.LocalAddr().(*net.UDPAddr).Port

	client := New(Config{Host: "127.0.0.1", Port: port}, testLogger())
	require.NoError(t, client.Open())
	defer client.Close()

	require.NoError(t, client.Send("/hydra/level", []protocol.TypedArg{
		{Tag: protocol.TagFloat32, Value: 0.5},
		{Tag: protocol.TagString, Value: "intro"},
	}))

	buf := make([]byte, 1024)
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := peer.ReadFromUDP(buf)
	require.NoError(t, err)

	messages, err := protocol.DecodePacket(buf[:n])
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "/hydra/level", messages[0].Path)
	assert.Equal(t, []any{
		protocol.TypedArg{Tag: protocol.TagFloat32, Value: float32(0.5)},
		protocol.TypedArg{Tag: protocol.TagString, Value: "intro"},
	}, messages[0].Args)

	stats := client.GetStatistics()
	assert.True(t, stats.Open)
	assert.Equal(t, uint64(1), stats.Sent)
}

func TestClient_EncodeErrorCounted(t *testing.T) {
	peer := listen(t)
	client := New(Config{Host: "127.0.0.1", Port: peer.LocalAddr().(*net.UDPAddr).Port}, testLogger())
	require.NoError(t, client.Open())
	defer client.Close()

	err := client.Send("", nil)
	assert.ErrorIs(t, err, protocol.ErrEmptyAddress)
	assert.Equal(t, uint64(1), client.GetStatistics().Failed)
}

func TestClient_Close(t *testing.T) {
	peer := listen(t)
	client := New(Config{Host: "127.0.0.1", Port: peer.LocalAddr().(*net.UDPAddr).Port}, testLogger())
	require.NoError(t, client.Open())

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	err := client.Send("/a", nil)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, client.Open(), ErrClosed)
}
