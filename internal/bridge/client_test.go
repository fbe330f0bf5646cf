package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(n *fakeNetwork, endpoints ...string) *Client {
	return New(Config{
		Endpoints:      endpoints,
		ConnectTimeout: time.Second,
		RequestTimeout: time.Second,
		Dialer:         n.dialer(),
	})
}

func TestClient_Defaults(t *testing.T) {
	c := New(Config{})
	assert.Equal(t, []string{DefaultEndpoint}, c.config.Endpoints)
	assert.Equal(t, DefaultConnectTimeout, c.config.ConnectTimeout)
	assert.Equal(t, DefaultRequestTimeout, c.config.RequestTimeout)
	assert.NotNil(t, c.config.Dialer)
	assert.Equal(t, 1, c.NodeCount())
}

func TestClient_CallBeforeConnect(t *testing.T) {
	c := newTestClient(newFakeNetwork(), "tcp://a")

	err := c.Ping(context.Background())

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClient_ConnectPartialFailure(t *testing.T) {
	n := newFakeNetwork()
	n.setDown("tcp://a", true)
	n.setDown("tcp://b", true)

	c := newTestClient(n, "tcp://a", "tcp://b", "tcp://c")
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	assert.Equal(t, []string{"tcp://c"}, c.LivePeers())
	assert.Equal(t, []string{"tcp://a", "tcp://b"}, c.FailedEndpoints())
	assert.Equal(t, 3, c.NodeCount())

	require.NoError(t, c.Ping(context.Background()))
}

func TestClient_ConnectAllFail(t *testing.T) {
	n := newFakeNetwork()
	n.setDown("tcp://a", true)
	n.setDown("tcp://b", true)

	c := newTestClient(n, "tcp://a", "tcp://b")
	err := c.Connect(context.Background())

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, []string{"tcp://a", "tcp://b"}, connErr.Endpoints)
	assert.Contains(t, err.Error(), "tcp://a")
	assert.Contains(t, err.Error(), "tcp://b")
	assert.ErrorIs(t, err, errFakeDown)
}

func TestClient_ConnectBadPong(t *testing.T) {
	n := newFakeNetwork()
	n.garbage["tcp://a"] = true

	c := newTestClient(n, "tcp://a")
	err := c.Connect(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedReply)
	assert.Equal(t, 1, n.closes["tcp://a"], "transport closed after failed probe")
}

func TestClient_RoundRobin(t *testing.T) {
	n := newFakeNetwork()
	c := newTestClient(n, "tcp://a", "tcp://b")
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, c.Ping(ctx))
	}

	// id 0 — ping при подключении, дальше ids строго растут
	assert.Equal(t, []int64{0, 1, 3}, n.servedIDs("tcp://a"))
	assert.Equal(t, []int64{0, 2, 4}, n.servedIDs("tcp://b"))
}

func TestClient_FailoverRecreatesTransport(t *testing.T) {
	n := newFakeNetwork()
	c := newTestClient(n, "tcp://a", "tcp://b")
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	n.failRoundTrips("tcp://a", 1)

	res, err := c.Bundle(context.Background(), BundleParams{Src: []string{"file::/x"}, Dst: "docs"})
	require.NoError(t, err)
	assert.Equal(t, "docs", res.Tag)

	// Транспорт a пересоздан, peer снова живой, запрос обслужил b
	assert.Equal(t, 2, n.dials["tcp://a"])
	assert.Equal(t, 1, n.closes["tcp://a"])
	assert.Equal(t, []string{"tcp://a", "tcp://b"}, c.LivePeers())
	assert.Equal(t, []int64{0, 1}, n.servedIDs("tcp://b"))
}

func TestClient_FailoverPeerStaysDead(t *testing.T) {
	n := newFakeNetwork()
	c := newTestClient(n, "tcp://a", "tcp://b")
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	n.setDown("tcp://a", true)

	require.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, []string{"tcp://b"}, c.LivePeers())

	// Следующие вызовы идут только на живой peer
	require.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, []int64{0, 1, 2}, n.servedIDs("tcp://b"))
}

func TestClient_FailoverReachesHealthyPeerWhenAnotherDies(t *testing.T) {
	n := newFakeNetwork()
	c := newTestClient(n, "tcp://a", "tcp://b", "tcp://c")
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	// a сбрасывает запросы, но переподключается; b лежит целиком
	n.failRoundTrips("tcp://a", 2)
	n.setDown("tcp://b", true)

	require.NoError(t, c.Ping(context.Background()))

	assert.Equal(t, []int64{0, 1}, n.servedIDs("tcp://c"))
	assert.Equal(t, 1, n.failNext["tcp://a"], "a tried once per call")
	assert.Equal(t, []string{"tcp://a", "tcp://c"}, c.LivePeers())
}

func TestClient_AllPeersFail(t *testing.T) {
	n := newFakeNetwork()
	c := newTestClient(n, "tcp://a", "tcp://b")
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	n.failRoundTrips("tcp://a", 100)
	n.failRoundTrips("tcp://b", 100)

	_, err := c.Query(context.Background(), "*", "*")

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, MethodQuery, connErr.Method)
	assert.Contains(t, err.Error(), "connection reset")

	// Ровно одна попытка на каждый живой peer
	assert.Equal(t, 99, n.failNext["tcp://a"])
	assert.Equal(t, 99, n.failNext["tcp://b"])
}

func TestClient_ReviveWhenNoLivePeers(t *testing.T) {
	n := newFakeNetwork()
	c := newTestClient(n, "tcp://a")
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	n.setDown("tcp://a", true)
	require.Error(t, c.Ping(context.Background()))
	assert.Empty(t, c.LivePeers())

	n.setDown("tcp://a", false)
	require.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, []string{"tcp://a"}, c.LivePeers())
}

func TestClient_ApplicationErrorNoRotation(t *testing.T) {
	n := newFakeNetwork()
	c := newTestClient(n, "tcp://a", "tcp://b")
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	err := c.call(context.Background(), "context_explode", nil, nil)

	var appErr *ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "unknown method: context_explode", appErr.Message)
	assert.Equal(t, "tcp://a", appErr.Endpoint)

	// b не получил запрос, a не пересоздавался
	assert.Equal(t, []int64{0}, n.servedIDs("tcp://b"))
	assert.Equal(t, 1, n.dials["tcp://a"])
}

func TestClient_MalformedReplyIsPeerFailure(t *testing.T) {
	n := newFakeNetwork()
	c := newTestClient(n, "tcp://a", "tcp://b")
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()

	n.mu.Lock()
	n.garbage["tcp://a"] = true
	n.mu.Unlock()

	require.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, 2, n.dials["tcp://a"])
}

func TestClient_TypedOperations(t *testing.T) {
	n := newFakeNetwork()
	n.store.put("docs", "a.txt", []byte("hello"))

	c := newTestClient(n, "tcp://a")
	require.NoError(t, c.Connect(context.Background()))
	defer c.Close()
	ctx := context.Background()

	q, err := c.Query(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, q.Matches, 1)
	assert.Equal(t, "docs", q.Matches[0].Tag)
	assert.Equal(t, "a.txt", q.Matches[0].Blob)
	require.NotNil(t, q.Matches[0].Size)
	assert.Equal(t, int64(5), *q.Matches[0].Size)

	r, err := c.Retrieve(ctx, "docs", "a.txt")
	require.NoError(t, err)
	assert.True(t, r.Found())
	data, err := r.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	missing, err := c.Retrieve(ctx, "docs", "nope")
	require.NoError(t, err)
	assert.False(t, missing.Found())
	data, err = missing.Bytes()
	require.NoError(t, err)
	assert.Nil(t, data)

	d, err := c.Destroy(ctx, "docs", "ghost")
	require.NoError(t, err)
	assert.Equal(t, []string{"docs"}, d.Destroyed)

	_, err = c.Destroy(ctx)
	assert.Error(t, err)
}

func TestClient_CloseIsBestEffort(t *testing.T) {
	n := newFakeNetwork()
	n.setDown("tcp://b", true)
	c := newTestClient(n, "tcp://a", "tcp://b", "tcp://c")
	require.NoError(t, c.Connect(context.Background()))

	c.Close()
	c.Close()

	assert.Equal(t, 1, n.closes["tcp://a"])
	assert.Equal(t, 1, n.closes["tcp://c"])
	assert.Empty(t, c.LivePeers())

	err := c.Ping(context.Background())
	assert.True(t, errors.Is(err, ErrNotConnected))
}

func TestRetrieveResult_Bytes(t *testing.T) {
	str := func(s string) *string { return &s }

	tests := []struct {
		name    string
		res     RetrieveResult
		want    []byte
		wantErr bool
	}{
		{name: "hex", res: RetrieveResult{Data: str("6869"), Encoding: str("hex")}, want: []byte("hi")},
		{name: "raw", res: RetrieveResult{Data: str("hi")}, want: []byte("hi")},
		{name: "nil", res: RetrieveResult{}, want: nil},
		{name: "bad hex", res: RetrieveResult{Data: str("zz"), Encoding: str("hex")}, wantErr: true},
		{name: "unknown encoding", res: RetrieveResult{Data: str("x"), Encoding: str("base64")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.res.Bytes()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
