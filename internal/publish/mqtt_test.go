package publish

import (
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/awattprice/awattprice/internal/engine"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	start := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)
	w := engine.Window{
		Points: []engine.PricePoint{
			{Start: start, End: start.Add(time.Hour), Price: 5},
			{Start: start.Add(time.Hour), End: start.Add(90 * time.Minute), Price: 5},
		},
		AveragePrice: 5,
	}

	msg := NewMessage("DE", w)
	assert.Equal(t, start, msg.Start)
	assert.Equal(t, start.Add(90*time.Minute), msg.End)
	assert.Empty(t, msg.TotalCost)

	msg = NewMessage("DE", w.WithCost(2))
	assert.Equal(t, "15", msg.TotalCost)

	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"region":"DE","start":"2024-01-01T01:00:00Z","end":"2024-01-01T02:30:00Z","average_price":5,"total_cost":"15"}`, string(payload))
}

func TestConnectGivesUpOnSilentBroker(t *testing.T) {
	// Accepts TCP connections but never answers CONNECT
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(io.Discard, conn)
	}()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	start := time.Now()
	_, err = Connect(Options{
		Broker:         "tcp://" + ln.Addr().String(),
		Topic:          "awattprice/cheapest",
		ClientID:       "test",
		ConnectTimeout: 200 * time.Millisecond,
	}, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connecting to MQTT broker")
	assert.Less(t, time.Since(start), 5*time.Second)
}
