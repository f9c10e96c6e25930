package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewRunCmd создаёт группу команд для управления runs.
func NewRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage build runs",
	}

	cmd.AddCommand(
		newRunListCmd(clientFn, outputFn),
		newRunSubmitCmd(clientFn, outputFn),
		newRunShowCmd(clientFn, outputFn),
		newRunTimelineCmd(clientFn, outputFn),
		newRunCancelCmd(clientFn, outputFn),
	)

	return cmd
}

func newRunListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListRuns(limit)
			if err != nil {
				return err
			}

			headers := []string{"ID", "STATUS", "STEPS", "CURSOR", "SLO", "SPENT", "CREATED"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{
					r.ID,
					r.Status,
					strconv.Itoa(len(r.Plan)),
					strconv.Itoa(r.Cursor),
					r.SLO,
					fmt.Sprintf("%.4f", r.Budget.SpentCost),
					r.CreatedAt,
				}
			}

			out.Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newRunSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var planPath string
	var slo string
	var maxCost float64
	var maxAttempts int
	var maxTimeSec int

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a build plan and start a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			plan, err := readPlan(planPath)
			if err != nil {
				return err
			}

			run, err := client.SubmitRun(SubmitRunRequest{
				Plan: plan,
				Budget: BudgetRequest{
					MaxCost:     maxCost,
					MaxAttempts: maxAttempts,
					MaxTimeSec:  maxTimeSec,
				},
				SLO: slo,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run started: %s", run.ID))
			out.Print(
				[]string{"ID", "STATUS", "STEPS", "SLO", "CREATED"},
				[][]string{{run.ID, run.Status, strconv.Itoa(len(run.Plan)), run.SLO, run.CreatedAt}},
				run,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&planPath, "plan", "", "Path to plan JSON file ('-' for stdin)")
	cmd.Flags().StringVar(&slo, "slo", "", "SLO tier (fast, normal, thorough)")
	cmd.Flags().Float64Var(&maxCost, "max-cost", 0, "Cost budget (0 = unlimited)")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Attempt budget (0 = unlimited)")
	cmd.Flags().IntVar(&maxTimeSec, "max-time-sec", 0, "Wall-clock budget in seconds (0 = unlimited)")
	cmd.MarkFlagRequired("plan")

	return cmd
}

// readPlan читает план из файла или stdin ('-').
func readPlan(path string) ([]StepRequest, error) {
	var data []byte
	var err error

	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}

	var plan []StepRequest
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("invalid plan JSON: %w", err)
	}
	return plan, nil
}

func newRunShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show run details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			run, err := client.GetRun(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "STATUS", "CURSOR", "SPENT", "ATTEMPTS", "ERROR", "CREATED"},
				[][]string{{
					run.ID,
					run.Status,
					strconv.Itoa(run.Cursor),
					fmt.Sprintf("%.4f", run.Budget.SpentCost),
					strconv.Itoa(run.Budget.AttemptsUsed),
					run.Error,
					run.CreatedAt,
				}},
				run,
			)
			return nil
		},
	}
}

func newRunTimelineCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "timeline ID",
		Short: "Show the repair trail of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			attempts, err := client.Timeline(args[0])
			if err != nil {
				return err
			}

			headers := []string{"STEP_ID", "PHASE", "ATTEMPT", "OUTCOME", "DETAIL", "AT"}
			rows := make([][]string, len(attempts))
			for i, a := range attempts {
				rows[i] = []string{a.StepID, a.Phase, strconv.Itoa(a.Attempt), a.Outcome, a.Detail, a.Timestamp}
			}

			out.Print(headers, rows, attempts)
			return nil
		},
	}
}

func newRunCancelCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Cancel a running run (completed steps are rolled back)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.CancelRun(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Run canceling: %s", args[0]))
			return nil
		},
	}
}
