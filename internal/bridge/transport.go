package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/go-zeromq/zmq4"
)

// Transport — синхронный канал запрос/ответ к одному endpoint'у.
//
// RoundTrip не должен блокироваться дольше дедлайна ctx. После ошибки
// транспорт считается сломанным и пересоздаётся через Dialer.
type Transport interface {
	RoundTrip(ctx context.Context, req []byte) ([]byte, error)
	Close() error
}

// Dialer открывает транспорт к endpoint'у.
type Dialer func(ctx context.Context, endpoint string) (Transport, error)

// dialRetry — пауза между попытками подключения внутри zmq4.
const dialRetry = 100 * time.Millisecond

// ZMQDialer возвращает Dialer, открывающий ZeroMQ REQ сокеты.
func ZMQDialer() Dialer {
	return func(ctx context.Context, endpoint string) (Transport, error) {
		opts := []zmq4.Option{zmq4.WithDialerRetry(dialRetry)}
		if deadline, ok := ctx.Deadline(); ok {
			opts = append(opts, zmq4.WithDialerTimeout(time.Until(deadline)))
		}

		// Сокет живёт дольше ctx подключения, поэтому у него свой контекст
		sock := zmq4.NewReq(context.Background(), opts...)

		errc := make(chan error, 1)
		go func() {
			errc <- sock.Dial(endpoint)
		}()

		select {
		case err := <-errc:
			if err != nil {
				_ = sock.Close()
				return nil, fmt.Errorf("dial %s: %w", endpoint, err)
			}
		case <-ctx.Done():
			_ = sock.Close()
			return nil, fmt.Errorf("dial %s: %w", endpoint, ctx.Err())
		}

		return &zmqTransport{sock: sock, endpoint: endpoint}, nil
	}
}

// zmqTransport — Transport поверх REQ сокета.
type zmqTransport struct {
	sock     zmq4.Socket
	endpoint string
}

type roundTripResult struct {
	msg zmq4.Msg
	err error
}

// RoundTrip отправляет запрос и ждёт ответ не дольше дедлайна ctx.
// По таймауту сокет закрывается: REQ после потерянного ответа непригоден.
func (t *zmqTransport) RoundTrip(ctx context.Context, req []byte) ([]byte, error) {
	done := make(chan roundTripResult, 1)
	go func() {
		if err := t.sock.Send(zmq4.NewMsg(req)); err != nil {
			done <- roundTripResult{err: fmt.Errorf("send: %w", err)}
			return
		}
		msg, err := t.sock.Recv()
		if err != nil {
			err = fmt.Errorf("recv: %w", err)
		}
		done <- roundTripResult{msg: msg, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		return res.msg.Bytes(), nil
	case <-ctx.Done():
		_ = t.sock.Close()
		return nil, fmt.Errorf("request to %s: %w", t.endpoint, ctx.Err())
	}
}

func (t *zmqTransport) Close() error {
	return t.sock.Close()
}
