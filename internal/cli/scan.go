package cli

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zero-day-ai/audityzer"
	"github.com/zero-day-ai/audityzer/compare"
	"github.com/zero-day-ai/audityzer/finding"
	"github.com/zero-day-ai/audityzer/scan"
)

func newScanCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <address>...",
		Short: "Audit one or more contracts and print the results",
		Example: "audityzer scan --endpoint http://auditor:8000/audit 0x1f98...c3 0x1f98...c4 --compare\n" +
			"AUDITYZER_ANALYSIS_MODE=queue audityzer scan 0x1f98...c3",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, newLogger(cfg, cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			tickets := make([]*audityzer.Ticket, 0, len(args))
			for _, address := range args {
				ticket, err := a.manager.Submit(ctx, address)
				if err != nil {
					return err
				}
				tickets = append(tickets, ticket)
			}

			jobs := make([]scan.Job, 0, len(tickets))
			var failed int
			for _, ticket := range tickets {
				job, err := ticket.Wait(ctx)
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "scan of %s failed: %v\n", ticket.Address(), err)
				}
				for _, nerr := range ticket.NotificationErrors() {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", nerr)
				}
				jobs = append(jobs, job)
			}

			out := cmd.OutOrStdout()
			printJobs(out, jobs)

			if v.GetBool("scan.compare") {
				printComparison(out, jobs)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scan(s) failed", failed, len(jobs))
			}
			return nil
		},
	}

	cmd.Flags().Bool("compare", false, "Compare the completed scans against the first one")
	_ = v.BindPFlag("scan.compare", cmd.Flags().Lookup("compare"))
	return cmd
}

func printJobs(w io.Writer, jobs []scan.Job) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tSTATUS\tCRITICAL\tHIGH\tMEDIUM\tLOW\tDURATION")
	for _, j := range jobs {
		var s finding.Summary
		if j.Result != nil {
			s = j.Result.Tally()
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			j.TargetAddress, j.Status, s.Critical, s.High, s.Medium, s.Low, j.Duration().Round(time.Millisecond))
	}
	_ = tw.Flush()
}

func printComparison(w io.Writer, jobs []scan.Job) {
	completed := make([]scan.Job, 0, len(jobs))
	for _, j := range jobs {
		if j.Status == scan.StatusCompleted {
			completed = append(completed, j)
		}
	}
	if len(completed) < 2 {
		fmt.Fprintln(w, "\ncomparison needs at least two completed scans")
		return
	}

	for _, col := range compare.Compare(completed) {
		label := col.Job.TargetAddress
		if col.Baseline {
			label += " (baseline)"
		}
		counts := col.Counts()
		fmt.Fprintf(w, "\n%s: %d new, %d unchanged, %d resolved\n", label, counts.New, counts.Unchanged, counts.Resolved)

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, v := range col.Vulnerabilities {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", v.Status, v.Severity, v.Title)
		}
		_ = tw.Flush()
	}
}
