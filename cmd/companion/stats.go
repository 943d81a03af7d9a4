package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/TanguyBaudrin/familly-companion/internal/database"
	"github.com/TanguyBaudrin/familly-companion/internal/stats"
)

func statsCommand() *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print points earned this period and reward popularity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := commonRun(cmd)
			if err != nil {
				return err
			}
			p, err := stats.ParsePeriod(period)
			if err != nil {
				return err
			}

			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			out, err := stats.NewService(db, nil).Statistics(p)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "POINTS (%s)\t\n", p)
			for _, mp := range out.PointsByUser {
				fmt.Fprintf(tw, "%s\t%d\n", mp.Name, mp.Points)
			}
			fmt.Fprintln(tw, "\t")
			fmt.Fprintln(tw, "REWARD\tCLAIMS")
			for _, rc := range out.MostUsedRewards {
				fmt.Fprintf(tw, "%s\t%d\n", rc.Name, rc.Count)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&period, "period", "p", string(stats.Weekly), "weekly or monthly")
	return cmd
}
