package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Guizzs26/go-imei-sync/internal/dates"
)

// datesCmd represents the dates command
var datesCmd = &cobra.Command{
	Use:   "dates",
	Short: "Show the supported countries and the order date cells are parsed in",
	Long: `Date cells without a zone are read as wall clock time in the zone of
COUNTRY_CODE. Text dates are matched against the layouts below, first match
wins, so an ambiguous 01/02/2025 is read month-first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		active, _ := dates.CountryForZone(dates.LocationFor(cfg.CountryCode).String())

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CODE\tCOUNTRY\tZONE\t")
		for _, c := range dates.Countries() {
			mark := ""
			if c.Code == active.Code {
				mark = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Code, c.Name, c.Zone, mark)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		fmt.Println()
		fmt.Println("Text layouts, in order:")
		for i, l := range dates.Layouts() {
			fmt.Printf("%2d. %s\n", i+1, l)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(datesCmd)
}
