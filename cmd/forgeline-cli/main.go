// Forgeline CLI — инструмент командной строки для отправки планов
// сборки и наблюдения за выполнением через HTTP API.
//
// Использование:
//
//	forgeline [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	run      Управление runs
//	queue    Статистика worker pool
//	breaker  Состояние circuit breakers
//	canary   Canary-сравнение
//	chaos    Сводка chaos-инъекций
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mkoresh/forgeline/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "forgeline",
		Short:         "Forgeline CLI — self-healing build pipeline tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewRunCmd(clientFn, outputFn),
		cli.NewQueueCmd(clientFn, outputFn),
		cli.NewBreakerCmd(clientFn, outputFn),
		cli.NewCanaryCmd(clientFn, outputFn),
		cli.NewChaosCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
