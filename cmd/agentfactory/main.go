// agentfactory — выполнение pipeline'ов воркеров над storage-сервисом.
//
// Использование:
//
//	agentfactory [--env-file FILE] [--json] <command> [flags]
//
// Команды:
//
//	run       Выполнить pipeline один раз
//	schedule  Выполнять pipeline по cron
//	ping      Проверить bridge endpoint'ы
//	cache     Статистика и ключи blob-кэша
//	runs      История run'ов (PostgreSQL)
//	events    События выполнения (RabbitMQ)
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/SIslamMun/AgentFactory/internal/cli"
	"github.com/SIslamMun/AgentFactory/internal/config"
	"github.com/SIslamMun/AgentFactory/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var envFile string
	var jsonOutput bool
	var rt *cli.Runtime

	rootCmd := &cobra.Command{
		Use:           "agentfactory",
		Short:         "AgentFactory — worker pipelines over a cached storage bridge",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env читается до логгера, чтобы LOG_LEVEL из файла тоже учитывался
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}

			logger := telemetry.SetupLogger()
			rt = cli.NewRuntime(cfg, logger)
			cli.ServeMetrics(cmd.Context(), cfg.MetricsAddr, logger)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if rt != nil {
				rt.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "File with environment variables")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rtFn := func() *cli.Runtime { return rt }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewRunCmd(rtFn, outputFn),
		cli.NewScheduleCmd(rtFn, outputFn),
		cli.NewPingCmd(rtFn, outputFn),
		cli.NewCacheCmd(rtFn, outputFn),
		cli.NewRunsCmd(rtFn, outputFn),
		cli.NewEventsCmd(rtFn, outputFn),
	)

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
