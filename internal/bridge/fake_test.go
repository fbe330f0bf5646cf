package bridge

import (
	"context"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/bytedance/sonic"
)

// fakeStore — in-memory bridge: отвечает на методы протокола.
type fakeStore struct {
	mu    sync.Mutex
	blobs map[string]map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{blobs: make(map[string]map[string][]byte)}
}

func (s *fakeStore) put(tag, blob string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blobs[tag] == nil {
		s.blobs[tag] = make(map[string][]byte)
	}
	s.blobs[tag][blob] = data
}

type rawRequest struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
	ID     *int64         `json:"id"`
}

// handle обрабатывает сырой запрос и возвращает сырой ответ.
func (s *fakeStore) handle(raw []byte) []byte {
	var req rawRequest
	if err := sonic.Unmarshal(raw, &req); err != nil {
		return mustReply(nil, "bad request: "+err.Error(), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch req.Method {
	case MethodPing:
		return mustReply("pong", "", req.ID)

	case MethodBundle:
		dst, _ := req.Params["dst"].(string)
		if s.blobs[dst] == nil {
			s.blobs[dst] = make(map[string][]byte)
		}
		return mustReply(map[string]any{"status": "ok", "tag": dst}, "", req.ID)

	case MethodQuery:
		matches := make([]map[string]any, 0)
		for tag, blobs := range s.blobs {
			for name, data := range blobs {
				matches = append(matches, map[string]any{"tag": tag, "blob": name, "size": len(data)})
			}
		}
		return mustReply(map[string]any{"matches": matches}, "", req.ID)

	case MethodRetrieve:
		tag, _ := req.Params["tag"].(string)
		name, _ := req.Params["blob_name"].(string)
		data, ok := s.blobs[tag][name]
		if !ok {
			return mustReply(map[string]any{"data": nil, "encoding": nil}, "", req.ID)
		}
		return mustReply(map[string]any{"data": hex.EncodeToString(data), "encoding": "hex"}, "", req.ID)

	case MethodDestroy:
		tags, _ := req.Params["tags"].([]any)
		destroyed := make([]string, 0, len(tags))
		for _, t := range tags {
			tag, _ := t.(string)
			if _, ok := s.blobs[tag]; ok {
				delete(s.blobs, tag)
				destroyed = append(destroyed, tag)
			}
		}
		return mustReply(map[string]any{"status": "ok", "destroyed": destroyed}, "", req.ID)

	default:
		return mustReply(nil, "unknown method: "+req.Method, req.ID)
	}
}

func mustReply(result any, errMsg string, id *int64) []byte {
	rep := map[string]any{"result": result, "error": nil, "id": id}
	if errMsg != "" {
		rep["error"] = errMsg
	}
	out, err := sonic.Marshal(rep)
	if err != nil {
		panic(err)
	}
	return out
}

// fakeNetwork — набор endpoint'ов с управляемыми сбоями.
type fakeNetwork struct {
	mu    sync.Mutex
	store *fakeStore

	down     map[string]bool // dial и RoundTrip падают
	failNext map[string]int  // сколько следующих RoundTrip упадут
	garbage  map[string]bool // отвечает нечитаемым ответом

	dials  map[string]int
	closes map[string]int
	served map[string][]int64 // id запросов по endpoint'ам
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		store:    newFakeStore(),
		down:     make(map[string]bool),
		failNext: make(map[string]int),
		garbage:  make(map[string]bool),
		dials:    make(map[string]int),
		closes:   make(map[string]int),
		served:   make(map[string][]int64),
	}
}

var errFakeDown = errors.New("fake endpoint down")

func (n *fakeNetwork) dialer() Dialer {
	return func(ctx context.Context, endpoint string) (Transport, error) {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.dials[endpoint]++
		if n.down[endpoint] {
			return nil, errFakeDown
		}
		return &fakeTransport{net: n, endpoint: endpoint}, nil
	}
}

func (n *fakeNetwork) setDown(endpoint string, down bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.down[endpoint] = down
}

func (n *fakeNetwork) failRoundTrips(endpoint string, count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failNext[endpoint] = count
}

func (n *fakeNetwork) servedIDs(endpoint string) []int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int64(nil), n.served[endpoint]...)
}

type fakeTransport struct {
	net      *fakeNetwork
	endpoint string
	closed   bool
}

func (t *fakeTransport) RoundTrip(ctx context.Context, req []byte) ([]byte, error) {
	n := t.net
	n.mu.Lock()
	if t.closed {
		n.mu.Unlock()
		return nil, errors.New("transport closed")
	}
	if n.down[t.endpoint] {
		n.mu.Unlock()
		return nil, errFakeDown
	}
	if n.failNext[t.endpoint] > 0 {
		n.failNext[t.endpoint]--
		n.mu.Unlock()
		return nil, errors.New("send: connection reset")
	}
	if n.garbage[t.endpoint] {
		n.mu.Unlock()
		return []byte("not json"), nil
	}

	var r rawRequest
	if err := sonic.Unmarshal(req, &r); err == nil && r.ID != nil {
		n.served[t.endpoint] = append(n.served[t.endpoint], *r.ID)
	}
	n.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return n.store.handle(req), nil
}

func (t *fakeTransport) Close() error {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	if !t.closed {
		t.closed = true
		t.net.closes[t.endpoint]++
	}
	return nil
}
