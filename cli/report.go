package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/warp/gymdesk/api"
	"github.com/warp/gymdesk/generic"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the financial report for a period",
		Long: `Print revenue, margin and tax estimates for a period.

The period is either a name relative to today (day, week, month,
previous_month, quarter, year) or an explicit --start/--end range where
--end is exclusive.`,
		Args: cobra.NoArgs,
		RunE: runReport,
	}
	cmd.Flags().String("period", "month", "named period")
	cmd.Flags().String("start", "", "first day, YYYY-MM-DD")
	cmd.Flags().String("end", "", "day after the last, YYYY-MM-DD")
	cmd.Flags().StringP("output", "o", "text", "text or json")
	return cmd
}

func runReport(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := reportPeriod(cmd, generic.Today(a.clock))
	if err != nil {
		return err
	}
	report, err := a.handler.Finance.Report(cmd.Context(), p)
	if err != nil {
		return err
	}

	dto := api.ToReportDTO(report)
	out := cmd.OutOrStdout()
	if output, _ := cmd.Flags().GetString("output"); output == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(dto)
	}
	return printReport(out, dto)
}

func reportPeriod(cmd *cobra.Command, today generic.Date) (generic.Period, error) {
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")
	if start == "" && end == "" {
		name, _ := cmd.Flags().GetString("period")
		return generic.NamedPeriod(name, today)
	}
	s, err := generic.ParseDate(start)
	if err != nil {
		return generic.Period{}, fmt.Errorf("--start: %w", err)
	}
	e, err := generic.ParseDate(end)
	if err != nil {
		return generic.Period{}, fmt.Errorf("--end: %w", err)
	}
	return generic.NewPeriod(s, e)
}

func printReport(w io.Writer, r api.ReportDTO) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "Period\t[%s, %s)\t\n", r.PeriodStart, r.PeriodEnd)
	fmt.Fprintf(tw, "Memberships\t%s\t\n", r.Revenue.Membership)
	fmt.Fprintf(tw, "Products\t%s\t\n", r.Revenue.Products)
	fmt.Fprintf(tw, "Total\t%s\t\n", r.Revenue.Total)
	fmt.Fprintf(tw, "Margin (cost %s)\t%s\t\n", r.CostRatio, r.Margin)
	fmt.Fprintf(tw, "Tax (%s)\t%s\t\n", r.TaxRate, r.Tax)
	fmt.Fprintf(tw, "Net\t%s\t\n", r.Net)
	fmt.Fprintf(tw, "Payments / sales / visits\t%d / %d / %d\t\n", r.PaymentCount, r.SaleCount, r.Attendance)

	fmt.Fprintln(tw, "\t\t")
	fmt.Fprintln(tw, "By plan\t\t")
	for _, b := range r.ByPlan {
		fmt.Fprintf(tw, "%s (%d)\t%s\t\n", b.Key, b.Count, b.Amount)
	}
	fmt.Fprintln(tw, "By payment method\t\t")
	for _, b := range r.ByMethod {
		fmt.Fprintf(tw, "%s (%d)\t%s\t\n", b.Key, b.Count, b.Amount)
	}
	if len(r.TopProducts) > 0 {
		fmt.Fprintln(tw, "Top products\t\t")
		for _, p := range r.TopProducts {
			fmt.Fprintf(tw, "%s x%d\t%s\t\n", p.Name, p.Quantity, p.Revenue)
		}
	}
	return tw.Flush()
}
