package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SIslamMun/AgentFactory/internal/bridge"
)

// peerStatus — строка отчёта ping.
type peerStatus struct {
	Endpoint string `json:"endpoint"`
	State    string `json:"state"`
}

// NewPingCmd создаёт команду проверки bridge endpoint'ов.
func NewPingCmd(rtFn func() *Runtime, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Connect to every bridge endpoint and report which peers are live",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			client, err := rtFn().Bridge(cmd.Context())
			if err != nil {
				var connErr *bridge.ConnectionError
				if errors.As(err, &connErr) {
					printPeers(out, nil, connErr.Endpoints)
				}
				return err
			}

			if err := client.Ping(cmd.Context()); err != nil {
				return err
			}

			printPeers(out, client.LivePeers(), client.FailedEndpoints())
			out.Success(fmt.Sprintf("%d of %d peers live", len(client.LivePeers()),
				len(client.LivePeers())+len(client.FailedEndpoints())))
			return nil
		},
	}
}

func printPeers(out *Output, live, failed []string) {
	statuses := make([]peerStatus, 0, len(live)+len(failed))
	for _, ep := range live {
		statuses = append(statuses, peerStatus{Endpoint: ep, State: bridge.PeerLive.String()})
	}
	for _, ep := range failed {
		statuses = append(statuses, peerStatus{Endpoint: ep, State: bridge.PeerDead.String()})
	}

	rows := make([][]string, len(statuses))
	for i, s := range statuses {
		rows[i] = []string{s.Endpoint, s.State}
	}
	out.Print([]string{"ENDPOINT", "STATE"}, rows, statuses)
}
