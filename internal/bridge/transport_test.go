package bridge

import (
	"context"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startREP поднимает ZeroMQ REP сокет. handle == nil — сокет не отвечает.
func startREP(t *testing.T, handle func([]byte) []byte) string {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	rep := zmq4.NewRep(ctx)
	require.NoError(t, rep.Listen("tcp://127.0.0.1:0"))
	t.Cleanup(func() {
		cancel()
		_ = rep.Close()
	})

	go func() {
		for {
			msg, err := rep.Recv()
			if err != nil {
				return
			}
			if handle == nil {
				continue
			}
			if err := rep.Send(zmq4.NewMsg(handle(msg.Bytes()))); err != nil {
				return
			}
		}
	}()

	return "tcp://" + rep.Addr().String()
}

func TestZMQTransport_EndToEnd(t *testing.T) {
	store := newFakeStore()
	store.put("docs", "a.txt", []byte("hello"))
	endpoint := startREP(t, store.handle)

	c := New(Config{
		Endpoints:      []string{endpoint},
		ConnectTimeout: 2 * time.Second,
		RequestTimeout: 2 * time.Second,
	})
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	ctx := context.Background()

	res, err := c.Bundle(ctx, BundleParams{Src: []string{"file::/tmp/a.txt"}, Dst: "docs"})
	require.NoError(t, err)
	assert.Equal(t, "docs", res.Tag)

	r, err := c.Retrieve(ctx, "docs", "a.txt")
	require.NoError(t, err)
	data, err := r.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestZMQTransport_RequestTimeout(t *testing.T) {
	endpoint := startREP(t, nil)

	tr, err := ZMQDialer()(context.Background(), endpoint)
	require.NoError(t, err)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = tr.RoundTrip(ctx, []byte(`{"method":"ping","params":{},"id":1}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}
