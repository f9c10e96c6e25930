package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// NewQueueCmd создаёт группу команд для наблюдения за worker pool.
func NewQueueCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect worker pool queues",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show queue depth and lease stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			stats, err := client.QueueStats()
			if err != nil {
				return err
			}

			headers := []string{"CLASS", "DEPTH", "LEASED"}
			rows := make([][]string, len(stats.Queues))
			for i, q := range stats.Queues {
				rows[i] = []string{q.Class, strconv.Itoa(q.Depth), strconv.Itoa(q.Leased)}
			}

			out.Print(headers, rows, stats)
			if !out.jsonMode {
				out.Success(fmt.Sprintf("Workers: %d, active leases: %d", stats.Workers, stats.Leases))
			}
			return nil
		},
	})

	return cmd
}

// NewBreakerCmd создаёт группу команд для наблюдения за circuit breakers.
func NewBreakerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "breaker",
		Short: "Inspect circuit breakers",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List breaker states",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			breakers, err := client.Breakers()
			if err != nil {
				return err
			}

			headers := []string{"FAILURE_CLASS", "STATE", "FAILURES", "OPENED_AT", "COOLDOWN"}
			rows := make([][]string, len(breakers))
			for i, b := range breakers {
				rows[i] = []string{
					b.FailureClass,
					b.State,
					strconv.Itoa(b.ConsecutiveFailures),
					b.OpenedAt,
					fmt.Sprintf("%.0fs", b.CooldownSec),
				}
			}

			out.Print(headers, rows, breakers)
			return nil
		},
	})

	return cmd
}

// NewCanaryCmd создаёт группу команд для canary-сравнения.
func NewCanaryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "canary",
		Short: "Inspect canary comparison",
	}

	var window string

	report := &cobra.Command{
		Use:   "report",
		Short: "Compare baseline and canary over a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			summary, err := client.CanarySummary(window)
			if err != nil {
				return err
			}

			headers := []string{"VARIANT", "SAMPLES", "SUCCESS_RATE", "MEAN_COST", "MEAN_LATENCY"}
			rows := [][]string{
				metricsRow(summary.Baseline),
				metricsRow(summary.Canary),
			}

			out.Print(headers, rows, summary)
			if !out.jsonMode {
				msg := fmt.Sprintf("Recommendation: %s", summary.Recommendation)
				if summary.Reason != "" {
					msg += " (" + summary.Reason + ")"
				}
				out.Success(msg)
			}
			return nil
		},
	}
	report.Flags().StringVar(&window, "window", "1h", "Evaluation window (e.g. 30m, 1h)")

	cmd.AddCommand(report)
	return cmd
}

func metricsRow(m CanaryMetricsResponse) []string {
	return []string{
		m.Variant,
		strconv.Itoa(m.Samples),
		fmt.Sprintf("%.2f", m.SuccessRate),
		fmt.Sprintf("%.4f", m.MeanCost),
		time.Duration(m.MeanLatency).String(),
	}
}

// NewChaosCmd создаёт группу команд для chaos-сводки.
func NewChaosCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chaos",
		Short: "Inspect chaos injections",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "report",
		Short: "Show chaos injection summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			summary, err := client.ChaosSummary()
			if err != nil {
				return err
			}

			headers := []string{"TYPE", "RUN_ID", "RECOVERED", "INJECTED_AT"}
			rows := make([][]string, len(summary.Events))
			for i, e := range summary.Events {
				rows[i] = []string{e.Type, e.RunID, strconv.FormatBool(e.Recovered), e.InjectedAt}
			}

			out.Print(headers, rows, summary)
			if !out.jsonMode {
				out.Success(fmt.Sprintf(
					"Enabled: %t, injected: %d, recovered: %d, expired: %d, active: %d",
					summary.Enabled, summary.Injected, summary.Recovered, summary.Expired, summary.Active,
				))
			}
			return nil
		},
	})

	return cmd
}
