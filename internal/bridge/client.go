package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SIslamMun/AgentFactory/internal/telemetry"
)

// Значения по умолчанию.
const (
	DefaultEndpoint       = "tcp://127.0.0.1:5560"
	DefaultConnectTimeout = 5 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// Config — конфигурация Client.
type Config struct {
	// Endpoints — адреса bridge. Пустой список — DefaultEndpoint.
	Endpoints []string

	// ConnectTimeout — таймаут подключения и ping-проверки.
	ConnectTimeout time.Duration

	// RequestTimeout — таймаут одного обмена запрос/ответ.
	RequestTimeout time.Duration

	// Dialer открывает транспорты. По умолчанию ZeroMQ REQ.
	Dialer Dialer

	Logger *slog.Logger
}

// Client — RPC-клиент bridge с пулом peer'ов.
type Client struct {
	config Config
	logger *slog.Logger

	peers  []*peer
	failed []string
	cursor int
	nextID int64
}

// New создаёт Client. Подключение выполняется в Connect.
func New(cfg Config) *Client {
	if len(cfg.Endpoints) == 0 {
		cfg.Endpoints = []string{DefaultEndpoint}
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Dialer == nil {
		cfg.Dialer = ZMQDialer()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Client{
		config: cfg,
		logger: cfg.Logger.With("component", "bridge"),
	}
}

// Connect подключается ко всем endpoint'ам и проверяет каждый ping'ом.
//
// Недоступный endpoint не прерывает подключение. Ошибка возвращается,
// только если не поднялся ни один peer.
func (c *Client) Connect(ctx context.Context) error {
	c.Close()
	c.failed = nil

	var lastErr error
	for _, ep := range c.config.Endpoints {
		p, err := c.connectPeer(ctx, ep)
		if err != nil {
			c.logger.Warn("bridge endpoint unreachable", "endpoint", ep, "error", err)
			c.failed = append(c.failed, ep)
			lastErr = err
			continue
		}
		c.logger.Info("bridge endpoint connected", "endpoint", ep)
		c.peers = append(c.peers, p)
	}

	if len(c.peers) == 0 {
		return &ConnectionError{Endpoints: append([]string(nil), c.failed...), Err: lastErr}
	}

	if len(c.failed) > 0 {
		c.logger.Warn("some bridge endpoints unreachable",
			"failed", len(c.failed),
			"total", len(c.config.Endpoints),
			"endpoints", c.failed,
		)
	}
	return nil
}

// connectPeer открывает транспорт и выполняет ping.
func (c *Client) connectPeer(ctx context.Context, endpoint string) (*peer, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer cancel()

	t, err := c.config.Dialer(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	if err := probe(ctx, t); err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("ping %s: %w", endpoint, err)
	}

	return newPeer(endpoint, t, c.config.Dialer, c.config.ConnectTimeout, c.logger), nil
}

// probe отправляет ping с id 0 и ждёт "pong".
func probe(ctx context.Context, t Transport) error {
	payload, err := EncodeRequest(MethodPing, nil, 0)
	if err != nil {
		return err
	}
	raw, err := t.RoundTrip(ctx, payload)
	if err != nil {
		return err
	}
	rep, err := DecodeReply(raw)
	if err != nil {
		return err
	}
	if rep.Error != nil {
		return fmt.Errorf("%w: %s", ErrBadPong, *rep.Error)
	}
	var result string
	if err := decodeResult(rep, &result); err != nil || result != "pong" {
		return fmt.Errorf("%w: %s", ErrBadPong, string(rep.Result))
	}
	return nil
}

// Close закрывает транспорты всех peer'ов. Ошибки игнорируются.
func (c *Client) Close() {
	if len(c.peers) == 0 {
		return
	}
	for _, p := range c.peers {
		p.close()
	}
	c.logger.Info("bridge client closed", "peers", len(c.peers))
	c.peers = nil
	c.cursor = 0
}

// NodeCount возвращает число сконфигурированных endpoint'ов.
func (c *Client) NodeCount() int {
	return len(c.config.Endpoints)
}

// LivePeers возвращает endpoint'ы живых peer'ов.
func (c *Client) LivePeers() []string {
	var live []string
	for _, p := range c.peers {
		if p.live() {
			live = append(live, p.endpoint)
		}
	}
	return live
}

// FailedEndpoints возвращает endpoint'ы, не прошедшие Connect.
func (c *Client) FailedEndpoints() []string {
	return append([]string(nil), c.failed...)
}

// nextPeer выбирает следующий живой peer по кругу, пропуская уже опрошенные.
//
// Курсор идёт по фиксированным индексам c.peers: peer, ставший Dead
// посреди вызова, не сдвигает очередь остальных.
func (c *Client) nextPeer(tried map[*peer]bool) *peer {
	n := len(c.peers)
	for i := 0; i < n; i++ {
		idx := (c.cursor + i) % n
		p := c.peers[idx]
		if p.live() && !tried[p] {
			c.cursor = idx + 1
			return p
		}
	}
	return nil
}

func (c *Client) liveCount() int {
	n := 0
	for _, p := range c.peers {
		if p.live() {
			n++
		}
	}
	return n
}

// reviveDead пробует заново открыть транспорты мёртвых peer'ов.
func (c *Client) reviveDead(ctx context.Context) {
	for _, p := range c.peers {
		if !p.live() {
			p.revive(ctx)
		}
	}
}

// call выполняет RPC с failover по живым peer'ам.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	if len(c.peers) == 0 {
		return &ConnectionError{Method: method, Endpoints: c.config.Endpoints, Err: ErrNotConnected}
	}

	c.nextID++
	payload, err := EncodeRequest(method, params, c.nextID)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	attempts := c.liveCount()
	if attempts == 0 {
		c.reviveDead(ctx)
		attempts = c.liveCount()
	}

	lastErr := ErrNoLivePeers
	tried := make(map[*peer]bool, attempts)
	for i := 0; i < attempts; i++ {
		p := c.nextPeer(tried)
		if p == nil {
			break
		}
		tried[p] = true

		rep, err := c.exchange(ctx, p, payload)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", p.endpoint, err)
			p.recordFailure(ctx, err)
			continue
		}

		if rep.Error != nil {
			telemetry.BridgeRequests.WithLabelValues(method, "app_error").Inc()
			return &ApplicationError{Method: method, Endpoint: p.endpoint, Message: *rep.Error}
		}

		telemetry.BridgeRequests.WithLabelValues(method, "ok").Inc()
		if err := decodeResult(rep, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	}

	telemetry.BridgeRequests.WithLabelValues(method, "conn_error").Inc()
	return &ConnectionError{Method: method, Endpoints: c.endpoints(), Err: lastErr}
}

// exchange — один обмен с peer'ом. Нечитаемый ответ считается сбоем peer'а.
func (c *Client) exchange(ctx context.Context, p *peer, payload []byte) (*Reply, error) {
	raw, err := p.roundTrip(ctx, payload, c.config.RequestTimeout)
	if err != nil {
		return nil, err
	}
	return DecodeReply(raw)
}

func (c *Client) endpoints() []string {
	eps := make([]string, len(c.peers))
	for i, p := range c.peers {
		eps[i] = p.endpoint
	}
	return eps
}

// Ping проверяет доступность bridge через пул.
func (c *Client) Ping(ctx context.Context) error {
	var result string
	if err := c.call(ctx, MethodPing, nil, &result); err != nil {
		return err
	}
	if result != "pong" {
		return fmt.Errorf("%w: %q", ErrBadPong, result)
	}
	return nil
}

// Bundle загружает данные src в тег dst.
func (c *Client) Bundle(ctx context.Context, params BundleParams) (*BundleResult, error) {
	if params.Format == "" {
		params.Format = "arrow"
	}
	var res BundleResult
	if err := c.call(ctx, MethodBundle, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Query ищет blob'ы по шаблонам тега и имени.
func (c *Client) Query(ctx context.Context, tagPattern, blobPattern string) (*QueryResult, error) {
	if tagPattern == "" {
		tagPattern = "*"
	}
	if blobPattern == "" {
		blobPattern = "*"
	}
	var res QueryResult
	if err := c.call(ctx, MethodQuery, QueryParams{TagPattern: tagPattern, BlobPattern: blobPattern}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Retrieve читает blob из storage.
func (c *Client) Retrieve(ctx context.Context, tag, blob string) (*RetrieveResult, error) {
	var res RetrieveResult
	if err := c.call(ctx, MethodRetrieve, RetrieveParams{Tag: tag, BlobName: blob}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Destroy удаляет теги из storage.
func (c *Client) Destroy(ctx context.Context, tags ...string) (*DestroyResult, error) {
	if len(tags) == 0 {
		return nil, errors.New("destroy requires at least one tag")
	}
	var res DestroyResult
	if err := c.call(ctx, MethodDestroy, DestroyParams{Tags: tags}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}
