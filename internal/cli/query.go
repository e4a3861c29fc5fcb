package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/i474232898/city-weather/internal/weather"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// cityArg joins the positional args so `current New York` works unquoted.
func cityArg(args []string) string {
	return strings.Join(args, " ")
}

func newCurrentCmd(opts *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "current <city>",
		Short:   "Show current conditions for a city",
		Example: "  city-weather current Irkutsk,ru",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			svc, cache, err := newService(cfg, logger, nil)
			if err != nil {
				return err
			}
			defer cache.Close() //nolint:errcheck

			summary, err := svc.Current(cmd.Context(), cityArg(args))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, summary)
			}
			_, err = fmt.Fprintln(out, summary.String())
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of text")
	return cmd
}

func newForecastCmd(opts *options) *cobra.Command {
	var (
		day    int
		all    bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "forecast <city>",
		Short: "Show the daily forecast for a city",
		Example: `  city-weather forecast Irkutsk,ru            # tomorrow
  city-weather forecast Irkutsk,ru --day 0    # today
  city-weather forecast Irkutsk,ru --all`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if day < 0 {
				return fmt.Errorf("--day must not be negative, got %d", day)
			}
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			svc, cache, err := newService(cfg, logger, nil)
			if err != nil {
				return err
			}
			defer cache.Close() //nolint:errcheck

			city := cityArg(args)
			out := cmd.OutOrStdout()

			if all {
				days, err := svc.DailyForecastAll(cmd.Context(), city)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, days)
				}
				return printDays(out, city, days)
			}

			d, err := svc.DailyForecast(cmd.Context(), city, day)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, d)
			}
			_, err = fmt.Fprintln(out, d.Describe(city, day))
			return err
		},
	}
	cmd.Flags().IntVar(&day, "day", 1, "days ahead of today in the city's local time (0 = today)")
	cmd.Flags().BoolVar(&all, "all", false, "print every day the forecast covers")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of text")
	return cmd
}

func printDays(w io.Writer, city string, days []weather.DailySummary) error {
	if len(days) == 0 {
		_, err := fmt.Fprintf(w, "No forecast data for %s.\n", city)
		return err
	}

	title := cases.Title(language.English)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Daily forecast for %s\n", city)
	fmt.Fprintln(tw, "DATE\tDAY\tMIN\tMAX\tAVG\tHUMIDITY\tWIND\tCONDITIONS")
	for _, d := range days {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.0f%%\t%.1f m/s\t%s\n",
			d.DateString(), d.Date.Format("Mon"),
			weather.FormatCelsius(d.TempMin), weather.FormatCelsius(d.TempMax), weather.FormatCelsius(d.TempAvg),
			d.HumidityAvg, d.WindAvg, title.String(d.Description))
	}
	return tw.Flush()
}

func newResolveCmd(opts *options) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "resolve <city>",
		Short: "Resolve a city name to coordinates",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			svc, cache, err := newService(cfg, logger, nil)
			if err != nil {
				return err
			}
			defer cache.Close() //nolint:errcheck

			place, err := svc.Resolve(cmd.Context(), cityArg(args))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, place)
			}
			_, err = fmt.Fprintf(out, "%s: %.4f, %.4f (UTC%s)\n",
				place.Label(), place.Coordinates.Latitude, place.Coordinates.Longitude,
				formatUTCOffset(place.UTCOffsetSeconds))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of text")
	return cmd
}

// formatUTCOffset renders seconds east of UTC as "+08:00" or "-00:30".
func formatUTCOffset(seconds int) string {
	sign := '+'
	if seconds < 0 {
		sign, seconds = '-', -seconds
	}
	return fmt.Sprintf("%c%02d:%02d", sign, seconds/3600, seconds%3600/60)
}
