package cache

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// fakeMemcached — минимальный сервер текстового протокола memcached:
// gets/get, set, delete, stats items, stats cachedump.
type fakeMemcached struct {
	t  *testing.T
	ln net.Listener

	mu    sync.Mutex
	items map[string][]byte
	conns map[net.Conn]struct{}
	ttls  map[string]int
}

func startFakeMemcached(t *testing.T) *fakeMemcached {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	f := &fakeMemcached{
		t:     t,
		ln:    ln,
		items: make(map[string][]byte),
		conns: make(map[net.Conn]struct{}),
		ttls:  make(map[string]int),
	}
	go f.serve()
	t.Cleanup(f.Stop)
	return f
}

func (f *fakeMemcached) Host() Host {
	addr := f.ln.Addr().(*net.TCPAddr)
	return Host{Host: "127.0.0.1", Port: addr.Port}
}

// Stop закрывает listener и все активные соединения.
func (f *fakeMemcached) Stop() {
	_ = f.ln.Close()
	f.mu.Lock()
	defer f.mu.Unlock()
	for c := range f.conns {
		_ = c.Close()
	}
}

func (f *fakeMemcached) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.items))
	for k := range f.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f *fakeMemcached) Has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.items[key]
	return ok
}

func (f *fakeMemcached) TTL(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ttls[key]
}

func (f *fakeMemcached) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conns[conn] = struct{}{}
		f.mu.Unlock()
		go f.handle(conn)
	}
}

func (f *fakeMemcached) handle(conn net.Conn) {
	defer func() {
		f.mu.Lock()
		delete(f.conns, conn)
		f.mu.Unlock()
		_ = conn.Close()
	}()

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		fields := strings.Fields(strings.TrimRight(line, "\r\n"))
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "get", "gets":
			f.mu.Lock()
			for _, key := range fields[1:] {
				if val, ok := f.items[key]; ok {
					fmt.Fprintf(w, "VALUE %s 0 %d 1\r\n", key, len(val))
					w.Write(val)
					w.WriteString("\r\n")
				}
			}
			f.mu.Unlock()
			w.WriteString("END\r\n")

		case "set":
			// set <key> <flags> <exptime> <bytes>
			size, _ := strconv.Atoi(fields[4])
			exp, _ := strconv.Atoi(fields[3])
			buf := make([]byte, size+2)
			if _, err := io.ReadFull(r, buf); err != nil {
				return
			}
			f.mu.Lock()
			f.items[fields[1]] = buf[:size]
			f.ttls[fields[1]] = exp
			f.mu.Unlock()
			w.WriteString("STORED\r\n")

		case "delete":
			f.mu.Lock()
			_, ok := f.items[fields[1]]
			delete(f.items, fields[1])
			f.mu.Unlock()
			if ok {
				w.WriteString("DELETED\r\n")
			} else {
				w.WriteString("NOT_FOUND\r\n")
			}

		case "stats":
			f.writeStats(w, fields[1:])

		default:
			w.WriteString("ERROR\r\n")
		}

		if err := w.Flush(); err != nil {
			return
		}
	}
}

func (f *fakeMemcached) writeStats(w *bufio.Writer, args []string) {
	keys := f.Keys()

	switch {
	case len(args) == 1 && args[0] == "items":
		if len(keys) > 0 {
			fmt.Fprintf(w, "STAT items:1:number %d\r\n", len(keys))
			w.WriteString("STAT items:1:age 10\r\n")
		}
		w.WriteString("END\r\n")

	case len(args) == 3 && args[0] == "cachedump":
		limit, _ := strconv.Atoi(args[2])
		f.mu.Lock()
		for i, k := range keys {
			if limit > 0 && i >= limit {
				break
			}
			fmt.Fprintf(w, "ITEM %s [%d b; 0 s]\r\n", k, len(f.items[k]))
		}
		f.mu.Unlock()
		w.WriteString("END\r\n")

	default:
		w.WriteString("END\r\n")
	}
}
