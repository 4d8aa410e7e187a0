package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ratefeed/internal/currency"
	"ratefeed/internal/model"
	"ratefeed/internal/timezone"
)

// dateLayouts are accepted for --start and --end.
var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the task worker and the scheduled refresh",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, sync, err := setup()
			if err != nil {
				return err
			}
			defer sync()

			logger.Infow("Starting exchange rate feed", "port", cfg.Server.Port)
			app, err := NewApp(cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			return app.Run(cmd.Context())
		},
	}
}

func fetchCmd() *cobra.Command {
	var (
		code       string
		start, end string
		local      bool
		save       bool
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch one series, cache it and print it",
		Long: "Fetch the series for --currency between --start and --end. Bounds are UTC unless --local " +
			"is set, in which case they are local wall-clock times. Without bounds the persisted selection is used.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			utcBounds, err := checkBounds(start, end, local, save)
			if err != nil {
				return err
			}
			cfg, logger, sync, err := setup()
			if err != nil {
				return err
			}
			defer sync()

			p, err := newPipeline(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = p.close() }()

			sel := p.gateway.LoadSelection(cmd.Context())
			if code != "" {
				if sel.Currency, err = currency.Parse(code); err != nil {
					return fmt.Errorf("--currency: %w", err)
				}
			}
			if start != "" {
				if sel.StartMillis, err = parseDate(start); err != nil {
					return fmt.Errorf("--start: %w", err)
				}
			}
			if end != "" {
				if sel.EndMillis, err = parseDate(end); err != nil {
					return fmt.Errorf("--end: %w", err)
				}
			}
			// Persisted bounds are always local.
			if !utcBounds {
				if save {
					if err := p.gateway.SaveSelection(cmd.Context(), sel); err != nil {
						return fmt.Errorf("save selection: %w", err)
					}
				}
				sel.StartMillis = timezone.ToUTCMillis(sel.StartMillis, p.offsetAt)
				sel.EndMillis = timezone.ToUTCMillis(sel.EndMillis, p.offsetAt)
			}

			outcome, err := p.orch.Load(cmd.Context(), sel).Wait(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows, %d entries, %d skipped\n",
				sel.Currency, outcome.Rows, outcome.Entries, outcome.Skipped)
			return printEntries(cmd.OutOrStdout(), p.store.Current())
		},
	}
	cmd.Flags().StringVar(&code, "currency", "", "ISO 4217 currency code (default: persisted selection)")
	cmd.Flags().StringVar(&start, "start", "", "Range start, RFC3339 or YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "Range end, RFC3339 or YYYY-MM-DD")
	cmd.Flags().BoolVar(&local, "local", false, "Interpret --start and --end as local wall-clock times")
	cmd.Flags().BoolVar(&save, "save", false, "Persist the selection (requires --local or no bounds)")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the cached series and the persisted selection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, sync, err := setup()
			if err != nil {
				return err
			}
			defer sync()

			p, err := newPipeline(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = p.close() }()

			sel := p.gateway.LoadSelection(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Selection: %s from %s to %s (local)\n",
				sel.Currency, formatLocal(float64(sel.StartMillis)), formatLocal(float64(sel.EndMillis)))
			return printEntries(cmd.OutOrStdout(), p.store.Current())
		},
	}
}

func currenciesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "currencies",
		Short: "List the supported currency codes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			codes := currency.All()
			names := make([]string, len(codes))
			for i, c := range codes {
				names[i] = string(c)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), strings.Join(names, " "))
			return err
		},
	}
}

// checkBounds reports whether the flags describe UTC bounds. UTC bounds must be
// complete and are never persisted, since the persisted selection is local.
func checkBounds(start, end string, local, save bool) (bool, error) {
	given := start != "" || end != ""
	if !given || local {
		return false, nil
	}
	if start == "" || end == "" {
		return false, errors.New("--start and --end must both be set unless --local is used")
	}
	if save {
		return false, errors.New("--save requires --local bounds")
	}
	return true, nil
}

// parseDate reads s as wall-clock millis: a bare date or time without zone is taken as UTC.
func parseDate(s string) (int64, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("unrecognized date %q", s)
}

// formatLocal renders local wall-clock millis without applying any zone.
func formatLocal(millis float64) string {
	return time.UnixMilli(int64(millis)).UTC().Format("2006-01-02 15:04:05")
}

func printEntries(w io.Writer, entries []model.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No data")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME (LOCAL)\tRATE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%g\n", formatLocal(e.TimestampLocalMillis), e.Rate)
	}
	return tw.Flush()
}
