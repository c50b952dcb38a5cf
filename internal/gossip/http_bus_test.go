package gossip

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHTTPBus(t *testing.T, id string) (*HTTPBus, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	bus := NewHTTPBus(id, zap.NewNop())
	router := gin.New()
	router.GET("/gossip", bus.Handler())
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/gossip"
	return bus, wsURL
}

func TestHTTPBusPublishCrossesProcesses(t *testing.T) {
	busA, addrA := newTestHTTPBus(t, "nodeA")
	busB, addrB := newTestHTTPBus(t, "nodeB")

	received := make(chan []byte, 1)
	require.NoError(t, busB.Subscribe("topic1", func(topic, peer string, payload []byte) {
		received <- payload
	}, nil))
	require.NoError(t, busA.Subscribe("topic1", nil, nil))

	require.NoError(t, busA.Connect(addrB))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, busA.Publish("topic1", []byte("hello")))

	select {
	case got := <-received:
		require.Equal(t, []byte("hello"), got)
	case <-time.After(2 * time.Second):
		t.Fatal("message never arrived")
	}

	_ = addrA
}

func TestHTTPBusDirectSendTargetsOnePeer(t *testing.T) {
	busA, _ := newTestHTTPBus(t, "nodeA")
	busB, addrB := newTestHTTPBus(t, "nodeB")

	var roomFromB Room
	joined := make(chan struct{}, 1)
	require.NoError(t, busB.Subscribe("topic1", func(topic, peer string, payload []byte) {}, func(topic, peer string, room Room) {
		roomFromB = room
		joined <- struct{}{}
	}))

	received := make(chan []byte, 1)
	require.NoError(t, busA.Subscribe("topic1", func(topic, peer string, payload []byte) {
		received <- payload
	}, nil))

	require.NoError(t, busA.Connect(addrB))

	select {
	case <-joined:
	case <-time.After(2 * time.Second):
		t.Fatal("peer join never observed")
	}

	require.NoError(t, roomFromB.SendTo("nodeA", []byte("direct hello")))

	select {
	case got := <-received:
		require.Equal(t, []byte("direct hello"), got)
	case <-time.After(2 * time.Second):
		t.Fatal("direct message never arrived")
	}
}
