package bridge

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/SIslamMun/AgentFactory/internal/telemetry"
)

// PeerState — состояние peer'а.
type PeerState int

const (
	PeerLive PeerState = iota
	PeerDead
)

// String возвращает строковое представление состояния.
func (s PeerState) String() string {
	if s == PeerLive {
		return "live"
	}
	return "dead"
}

// peer — один endpoint bridge со своим транспортом.
//
// Live → Dead только через recordFailure; Dead → Live только после
// успешного redial. Транспорт наружу не отдаётся.
type peer struct {
	endpoint  string
	transport Transport
	state     PeerState

	dial           Dialer
	connectTimeout time.Duration
	logger         *slog.Logger
}

func newPeer(endpoint string, t Transport, dial Dialer, connectTimeout time.Duration, logger *slog.Logger) *peer {
	return &peer{
		endpoint:       endpoint,
		transport:      t,
		state:          PeerLive,
		dial:           dial,
		connectTimeout: connectTimeout,
		logger:         telemetry.WithEndpoint(logger, endpoint),
	}
}

func (p *peer) live() bool {
	return p.state == PeerLive
}

// roundTrip выполняет обмен с таймаутом запроса.
func (p *peer) roundTrip(ctx context.Context, payload []byte, timeout time.Duration) ([]byte, error) {
	if p.transport == nil {
		return nil, errors.New("peer has no transport")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.transport.RoundTrip(ctx, payload)
}

// recordFailure — единственный переход Live → Dead.
//
// Закрывает транспорт и открывает новый. При успехе peer снова Live,
// иначе остаётся Dead до revive.
func (p *peer) recordFailure(ctx context.Context, cause error) {
	p.state = PeerDead
	telemetry.BridgeFailovers.WithLabelValues(p.endpoint).Inc()
	p.logger.Warn("bridge peer failed", "error", cause)

	p.revive(ctx)
}

// revive закрывает старый транспорт и пытается открыть новый.
func (p *peer) revive(ctx context.Context) bool {
	if p.transport != nil {
		_ = p.transport.Close()
		p.transport = nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.connectTimeout)
	defer cancel()

	t, err := p.dial(ctx, p.endpoint)
	if err != nil {
		p.logger.Warn("bridge peer redial failed", "error", err)
		return false
	}

	p.transport = t
	p.state = PeerLive
	p.logger.Debug("bridge peer transport recreated")
	return true
}

// close закрывает транспорт независимо от состояния.
func (p *peer) close() {
	if p.transport != nil {
		_ = p.transport.Close()
		p.transport = nil
	}
	p.state = PeerDead
}
