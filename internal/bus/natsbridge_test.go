package bus

import (
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startEmbeddedNATS spins up an in-process NATS server on a random port.
func startEmbeddedNATS(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{Host: "127.0.0.1", Port: -1}
	srv, err := natsserver.NewServer(opts)
	require.NoError(t, err)
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("embedded NATS server did not start")
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestNATSBridgeMirrorsEvents(t *testing.T) {
	srv := startEmbeddedNATS(t)

	b := New()
	bridge, err := NewNATSBridge(b, NATSBridgeConfig{URL: srv.ClientURL()})
	require.NoError(t, err)
	defer bridge.Close()

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	received := make(chan *nats.Msg, 1)
	_, err = nc.Subscribe("truthplane.events.SIGNAL_GENERATED", func(m *nats.Msg) {
		received <- m
	})
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	b.Emit(EventSignalGenerated, map[string]string{"platform": "pancakeswap"})

	select {
	case msg := <-received:
		var ev Event
		require.NoError(t, json.Unmarshal(msg.Data, &ev))
		assert.Equal(t, EventSignalGenerated, ev.Type)
	case <-time.After(3 * time.Second):
		t.Fatal("mirrored event not received")
	}
}

func TestNATSBridgeCloseDetachesFromBus(t *testing.T) {
	srv := startEmbeddedNATS(t)

	b := New()
	bridge, err := NewNATSBridge(b, NATSBridgeConfig{URL: srv.ClientURL()})
	require.NoError(t, err)

	bridge.Close()
	// Emitting after close must not panic or publish.
	b.Emit(EventBetDetected, nil)
	assert.Equal(t, 0, len(b.handlers[Wildcard]))
}
