package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/awattprice/awattprice/internal/app"
	"github.com/awattprice/awattprice/internal/config"
	"github.com/awattprice/awattprice/internal/engine"
	"github.com/awattprice/awattprice/internal/planner"
	"github.com/awattprice/awattprice/internal/tariff"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	dbPath  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "awattprice",
		Short: "AWattPrice - find the cheapest time to run an appliance",
		Long: `AWattPrice fetches hourly aWATTar electricity prices and finds the
cheapest contiguous time window for a given run duration or energy amount.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database path (default is $HOME/.awattprice/awattprice.db)")

	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(cheapestCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(historyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openApp() (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	return app.New(cfg)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func fetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Print current and future prices in cent/kWh",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			series, _, err := a.Planner.Prices(cmd.Context())
			if err != nil {
				return err
			}

			return printJSON(series)
		},
	}
}

func cheapestCmd() *cobra.Command {
	var duration time.Duration
	var energyKWh, powerKW float64
	var from, until string

	cmd := &cobra.Command{
		Use:   "cheapest",
		Short: "Find the cheapest window to run an appliance",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			rangeStart, err := parseOptionalTime(from)
			if err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			rangeEnd, err := parseOptionalTime(until)
			if err != nil {
				return fmt.Errorf("invalid --until: %w", err)
			}

			var req engine.SearchRequest
			switch {
			case energyKWh > 0:
				req, err = engine.NewEnergyRequest(energyKWh, powerKW, rangeStart, rangeEnd)
				if err != nil {
					return err
				}
			case duration > 0:
				req = engine.SearchRequest{Duration: duration, RangeStart: rangeStart, RangeEnd: rangeEnd}
			default:
				return errors.New("either --duration or --energy is required")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			result, err := a.Planner.Cheapest(ctx, planner.Query{Request: req, PowerKW: powerKW})
			if errors.Is(err, engine.ErrNoWindow) {
				return errors.New("the selected time range is too short for the requested duration")
			}
			if err != nil {
				return err
			}

			w := result.Window
			fmt.Printf("Cheapest window: %s - %s\n", w.Start().Local().Format("Mon 15:04"), w.End().Local().Format("Mon 15:04"))
			fmt.Printf("Average price:   %.2f ct/kWh\n", w.AveragePrice)
			if w.TotalCost != nil {
				fmt.Printf("Estimated cost:  %s ct\n", w.TotalCost.StringFixed(2))
			}
			return nil
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Run duration (e.g. 2h20m)")
	cmd.Flags().Float64VarP(&energyKWh, "energy", "e", 0, "Energy to consume in kWh (needs --power)")
	cmd.Flags().Float64VarP(&powerKW, "power", "p", 0, "Appliance power in kW")
	cmd.Flags().StringVar(&from, "from", "", "Earliest start (RFC3339, default now)")
	cmd.Flags().StringVar(&until, "until", "", "Latest end (RFC3339, default end of known prices)")

	return cmd
}

func parseOptionalTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change price settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			settings, err := a.Store.GetSettings()
			if err != nil {
				return err
			}
			return printJSON(settings)
		},
	})

	cmd.AddCommand(settingsSetCmd())

	return cmd
}

func settingsSetCmd() *cobra.Command {
	var region, baseFee string
	var includeVAT bool
	var powerKW float64

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			settings, err := a.Store.GetSettings()
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("region") {
				if settings.Region, err = tariff.ParseRegion(region); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("vat") {
				settings.IncludeVAT = includeVAT
			}
			if cmd.Flags().Changed("base-fee") {
				if settings.BaseFeeCent, err = decimal.NewFromString(baseFee); err != nil {
					return fmt.Errorf("invalid --base-fee: %w", err)
				}
			}
			if cmd.Flags().Changed("power") {
				settings.PowerKW = powerKW
			}

			if err := a.Store.SaveSettings(settings); err != nil {
				return err
			}

			fmt.Println("✓ Settings saved")
			return printJSON(settings)
		},
	}

	cmd.Flags().StringVarP(&region, "region", "r", "DE", "aWATTar region (DE or AT)")
	cmd.Flags().BoolVar(&includeVAT, "vat", true, "Include VAT in prices")
	cmd.Flags().StringVar(&baseFee, "base-fee", "0", "Base fee in cent/kWh added to every price")
	cmd.Flags().Float64Var(&powerKW, "power", 0, "Default appliance power in kW")

	return cmd
}

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previous cheapest windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.Store.History(limit)
			if err != nil {
				return err
			}

			if len(records) == 0 {
				fmt.Println("No searches recorded")
				return nil
			}

			fmt.Printf("%-36s %-6s %-17s %-17s %10s\n", "ID", "REGION", "START", "END", "CT/KWH")
			fmt.Println("------------------------------------------------------------------------------------------")

			for _, r := range records {
				fmt.Printf("%-36s %-6s %-17s %-17s %10.2f\n",
					r.ID, r.Region,
					r.Window.Start().Local().Format("2006-01-02 15:04"),
					r.Window.End().Local().Format("2006-01-02 15:04"),
					r.Window.AveragePrice)
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries")

	return cmd
}
