package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/akylbek/payment-system/payment-core/internal/models"
)

type clientFunc func() *apiClient

type providerRow struct {
	models.ProviderPriority
	Capabilities []string `json:"capabilities"`
	Health       *struct {
		Healthy bool   `json:"healthy"`
		Message string `json:"message"`
	} `json:"health"`
}

func providersCmd(client clientFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List providers with priority, capabilities and health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Providers []providerRow `json:"providers"`
			}
			if err := client().get(cmd.Context(), "/v1/providers", nil, &resp); err != nil {
				return err
			}
			return printProviders(cmd.OutOrStdout(), resp.Providers)
		},
	}
	cmd.AddCommand(providerSetCmd(client))
	return cmd
}

func providerSetCmd(client clientFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set [name]",
		Short: "Change a provider's priority or enabled flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{}
			if cmd.Flags().Changed("priority") {
				p, _ := cmd.Flags().GetInt("priority")
				body["priority"] = p
			}
			if cmd.Flags().Changed("enabled") {
				e, _ := cmd.Flags().GetBool("enabled")
				body["enabled"] = e
			}
			if len(body) == 0 {
				return fmt.Errorf("nothing to change: pass --priority and/or --enabled")
			}
			var updated models.ProviderPriority
			if err := client().do(cmd.Context(), http.MethodPut, "/v1/providers/"+url.PathEscape(args[0]), body, &updated); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: priority=%d enabled=%t\n", updated.Provider, updated.Priority, updated.Enabled)
			return nil
		},
	}
	cmd.Flags().Int("priority", 0, "Priority (lower is tried first)")
	cmd.Flags().Bool("enabled", true, "Whether the provider takes traffic")
	return cmd
}

func reconcileCmd(client clientFunc) *cobra.Command {
	var (
		providerName string
		date         string
		asJSON       bool
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile one provider, or all of them, over a UTC calendar day",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := dayWindow(date, time.Now().UTC())
			if err != nil {
				return err
			}
			body := map[string]any{"provider": providerName, "start": start, "end": end}

			var reports []models.ReconciliationReport
			if providerName != "" {
				var report models.ReconciliationReport
				if err := client().do(cmd.Context(), http.MethodPost, "/v1/reconciliations", body, &report); err != nil {
					return err
				}
				reports = append(reports, report)
			} else {
				var resp struct {
					Reports []models.ReconciliationReport `json:"reports"`
					Error   string                        `json:"error"`
				}
				if err := client().do(cmd.Context(), http.MethodPost, "/v1/reconciliations", body, &resp); err != nil {
					return err
				}
				reports = resp.Reports
				if resp.Error != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", resp.Error)
				}
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), reports)
			}
			return printReports(cmd.OutOrStdout(), reports, true)
		},
	}
	cmd.Flags().StringVarP(&providerName, "provider", "p", "", "Provider to reconcile (default: all)")
	cmd.Flags().StringVarP(&date, "date", "d", "", "Day to reconcile as YYYY-MM-DD (default: yesterday)")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}

func reportsCmd(client clientFunc) *cobra.Command {
	var (
		providerName string
		limit        int
		asJSON       bool
	)
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Show stored reconciliation reports, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{"limit": {strconv.Itoa(limit)}}
			if providerName != "" {
				q.Set("provider", providerName)
			}
			var resp struct {
				Reports []models.ReconciliationReport `json:"reports"`
			}
			if err := client().get(cmd.Context(), "/v1/reconciliations", q, &resp); err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), resp.Reports)
			}
			return printReports(cmd.OutOrStdout(), resp.Reports, false)
		},
	}
	cmd.Flags().StringVarP(&providerName, "provider", "p", "", "Filter by provider")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum reports")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}

func statsCmd(client clientFunc) *cobra.Command {
	var (
		since  time.Duration
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show transaction statistics by provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			end := time.Now().UTC()
			q := url.Values{
				"from": {end.Add(-since).Format(time.RFC3339)},
				"to":   {end.Format(time.RFC3339)},
			}
			var stats models.Statistics
			if err := client().get(cmd.Context(), "/v1/statistics", q, &stats); err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			return printStatistics(cmd.OutOrStdout(), &stats)
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "Window length ending now")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	return cmd
}

func transactionCmd(client clientFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "tx [transaction-id]",
		Short: "Show the ledger history of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				History []models.TransactionLog `json:"history"`
			}
			if err := client().get(cmd.Context(), "/v1/transactions/"+url.PathEscape(args[0]), nil, &resp); err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CREATED\tTYPE\tPROVIDER\tSTATUS\tAMOUNT\tERROR")
			for _, e := range resp.History {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.CreatedAt.Format(time.RFC3339), e.Type, e.Provider, e.Status, e.Amount.String(), e.Error)
			}
			return w.Flush()
		},
	}
}

func blacklistCmd(client clientFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blacklist",
		Short: "Manage the fraud blacklist",
		RunE: func(cmd *cobra.Command, args []string) error {
			var lists map[string][]string
			if err := client().get(cmd.Context(), "/v1/fraud/blacklist", nil, &lists); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), lists)
		},
	}
	for _, method := range []string{http.MethodPost, http.MethodDelete} {
		use, short := "add [email|ip|domain] [value]", "Block a customer email, IP or email domain"
		if method == http.MethodDelete {
			use, short = "remove [email|ip|domain] [value]", "Lift a blacklist entry"
		}
		cmd.AddCommand(&cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				body := map[string]string{"kind": args[0], "value": args[1]}
				if err := client().do(cmd.Context(), method, "/v1/fraud/blacklist", body, nil); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			},
		})
	}
	return cmd
}

// dayWindow resolves a YYYY-MM-DD date into [00:00, 24:00) UTC. An empty date
// means the day before now.
func dayWindow(date string, now time.Time) (time.Time, time.Time, error) {
	var day time.Time
	if date == "" {
		y, m, d := now.AddDate(0, 0, -1).Date()
		day = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	} else {
		parsed, err := time.Parse(time.DateOnly, date)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --date %q: want YYYY-MM-DD", date)
		}
		day = parsed
	}
	return day, day.AddDate(0, 0, 1), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printProviders(out io.Writer, rows []providerRow) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tPRIORITY\tENABLED\tHEALTH\tCAPABILITIES")
	for _, p := range rows {
		health := "unknown"
		if p.Health != nil {
			health = "down"
			if p.Health.Healthy {
				health = "up"
			}
		}
		fmt.Fprintf(w, "%s\t%d\t%t\t%s\t%s\n", p.Provider, p.Priority, p.Enabled, health, strings.Join(p.Capabilities, ","))
	}
	return w.Flush()
}

func printReports(out io.Writer, reports []models.ReconciliationReport, details bool) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tPERIOD\tTOTAL\tOK\tFAILED\tDISCREPANCIES\tHIGH\tAMOUNT")
	for i := range reports {
		r := &reports[i]
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.Provider,
			r.PeriodStart.Format(time.DateOnly),
			r.TotalTransactions,
			r.SuccessfulTransactions,
			r.FailedTransactions,
			len(r.Discrepancies),
			r.HighSeverityCount(),
			formatAmounts(r.TotalAmount),
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if !details {
		return nil
	}
	for _, r := range reports {
		for _, d := range r.Discrepancies {
			fmt.Fprintf(out, "  [%s] %s %s: expected %s, got %s\n", d.Severity, r.Provider, d.TransactionID, d.Expected, d.Actual)
		}
	}
	return nil
}

func printStatistics(out io.Writer, stats *models.Statistics) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Window: %s .. %s\n\n", stats.Start.Format(time.RFC3339), stats.End.Format(time.RFC3339))
	fmt.Fprintln(w, "PROVIDER\tTOTAL\tOK\tFAILED\tPENDING\tSUCCEEDED AMOUNT")

	names := make([]string, 0, len(stats.ByProvider))
	for name := range stats.ByProvider {
		names = append(names, name)
	}
	sort.Strings(names)
	row := func(name string, b *models.StatisticsBucket) {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\n", name, b.Total, b.Successful, b.Failed, b.Pending, formatAmounts(b.SuccessAmount))
	}
	for _, name := range names {
		row(name, stats.ByProvider[name])
	}
	if stats.Overall != nil {
		row("ALL", stats.Overall)
	}
	return w.Flush()
}

func formatAmounts(a models.Amounts) string {
	if len(a) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(a))
	for cur, amt := range a {
		parts = append(parts, amt.StringFixed(2)+" "+string(cur))
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}
