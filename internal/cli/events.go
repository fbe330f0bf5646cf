package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/SIslamMun/AgentFactory/internal/mq"
)

// NewEventsCmd создаёт команду чтения событий выполнения из RabbitMQ.
func NewEventsCmd(rtFn func() *Runtime, outputFn func() *Output) *cobra.Command {
	var queue string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow run and step events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := rtFn()
			out := outputFn()

			conn, err := rt.MQ(cmd.Context())
			if err != nil {
				return err
			}
			if conn == nil {
				return errors.New("event bus is disabled, set RABBITMQ_URL")
			}

			consumer := mq.NewConsumer(conn, rt.logger, mq.ConsumerConfig{
				Queue:   mq.Queue(queue),
				Handler: printEvent(out),
			})

			if err := consumer.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&queue, "queue", string(mq.QueueRunEvents), "Queue to consume")
	return cmd
}

// printEvent печатает каждое событие одной строкой или JSON-объектом.
func printEvent(out *Output) mq.Handler {
	return func(_ context.Context, d *mq.Delivery) error {
		if out.jsonMode {
			out.JSON(map[string]any{
				"id":        d.ID,
				"type":      d.Type,
				"run_id":    d.RunID,
				"payload":   json.RawMessage(d.Payload),
				"timestamp": d.Timestamp,
			})
			return nil
		}
		out.Line(fmt.Sprintf("%s %-14s run=%s %s",
			d.Timestamp.Format(time.RFC3339), d.Type, d.RunID, string(d.Payload)))
		return nil
	}
}
