package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SIslamMun/AgentFactory/internal/cache"
)

// NewCacheCmd создаёт группу команд для blob-кэша.
func NewCacheCmd(rtFn func() *Runtime, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the blob cache",
	}

	cmd.AddCommand(
		newCacheStatsCmd(rtFn, outputFn),
		newCacheKeysCmd(rtFn, outputFn),
	)

	return cmd
}

func newCacheStatsCmd(rtFn func() *Runtime, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache nodes and hit statistics of this process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := rtFn().Cache(cmd.Context())
			if err != nil {
				return err
			}

			stats := c.Stats()
			backend := rtFn().Config().Cache.Backend
			if backend == "" {
				backend = cache.BackendMemcached
			}

			outputFn().Fields(
				[][2]string{
					{"Backend", string(backend)},
					{"Nodes", fmt.Sprint(c.NodeCount())},
					{"Key prefix", c.KeyPrefix()},
					{"Hits", fmt.Sprint(stats.Hits)},
					{"Misses", fmt.Sprint(stats.Misses)},
					{"Hit rate", fmt.Sprintf("%.2f", c.HitRate())},
				},
				map[string]any{
					"backend":  backend,
					"nodes":    c.NodeCount(),
					"prefix":   c.KeyPrefix(),
					"hits":     stats.Hits,
					"misses":   stats.Misses,
					"hit_rate": c.HitRate(),
				},
			)
			return nil
		},
	}
}

func newCacheKeysCmd(rtFn func() *Runtime, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "keys [TAG_PATTERN]",
		Short: "List cached blobs whose tag matches the pattern",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := "*"
			if len(args) == 1 {
				pattern = args[0]
			}

			c, err := rtFn().Cache(cmd.Context())
			if err != nil {
				return err
			}

			refs, err := c.QueryKeys(cmd.Context(), pattern)
			if err != nil {
				return err
			}

			rows := make([][]string, len(refs))
			for i, ref := range refs {
				rows[i] = []string{ref.Tag, ref.Blob}
			}
			outputFn().Print([]string{"TAG", "BLOB"}, rows, refs)
			return nil
		},
	}
}
