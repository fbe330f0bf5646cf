package cache

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"
)

// cachedumpLimit — сколько ключей запрашивать из каждого slab.
const cachedumpLimit = 100

// cachedumpLister перечисляет ключи memcached через stats items / stats cachedump.
//
// Работает с одним узлом и отдаёт не больше limit ключей на slab.
// cachedump есть не во всех сборках memcached.
type cachedumpLister struct {
	addr    string
	timeout time.Duration
	limit   int
}

// ListKeys реализует KeyLister.
func (l *cachedumpLister) ListKeys(ctx context.Context) ([]string, error) {
	dialer := net.Dialer{Timeout: l.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", l.addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", l.addr, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(l.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	rw := bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn))

	lines, err := command(rw, "stats items")
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, slab := range parseSlabIDs(lines) {
		lines, err := command(rw, fmt.Sprintf("stats cachedump %d %d", slab, l.limit))
		if err != nil {
			return nil, err
		}
		keys = append(keys, parseItemKeys(lines)...)
	}
	return keys, nil
}

// command отправляет текстовую команду и читает ответ до END.
func command(rw *bufio.ReadWriter, cmd string) ([]string, error) {
	if _, err := rw.WriteString(cmd + "\r\n"); err != nil {
		return nil, err
	}
	if err := rw.Flush(); err != nil {
		return nil, err
	}

	var lines []string
	for {
		line, err := rw.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read %q response: %w", cmd, err)
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "END":
			return lines, nil
		case line == "ERROR",
			strings.HasPrefix(line, "CLIENT_ERROR"),
			strings.HasPrefix(line, "SERVER_ERROR"):
			return nil, fmt.Errorf("%s: %s", cmd, line)
		}
		lines = append(lines, line)
	}
}

// parseSlabIDs достаёт номера slab из строк "STAT items:<id>:<field> <value>".
func parseSlabIDs(lines []string) []int {
	seen := make(map[int]bool)
	var ids []int
	for _, line := range lines {
		rest, ok := strings.CutPrefix(line, "STAT items:")
		if !ok {
			continue
		}
		idStr, _, _ := strings.Cut(rest, ":")
		id, err := strconv.Atoi(idStr)
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// parseItemKeys достаёт ключи из строк "ITEM <key> [<size> b; <exp> s]".
func parseItemKeys(lines []string) []string {
	var keys []string
	for _, line := range lines {
		rest, ok := strings.CutPrefix(line, "ITEM ")
		if !ok {
			continue
		}
		key, _, _ := strings.Cut(rest, " ")
		if key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}
