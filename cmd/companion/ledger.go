package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/TanguyBaudrin/familly-companion/internal/database"
	"github.com/TanguyBaudrin/familly-companion/internal/points"
)

var errLedgerMismatch = errors.New("ledger does not match balances")

func ledgerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect the points ledger",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Check every balance against the sum of its ledger entries",
		RunE:  ledgerVerifyRun,
	})
	return cmd
}

func ledgerVerifyRun(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := commonRun(cmd)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	engine := points.New(db, points.WithLogger(logger))
	diffs, err := engine.VerifyLedger(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(diffs) == 0 {
		fmt.Fprintln(out, "ledger ok")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MEMBER\tNAME\tBALANCE\tLEDGER")
	for _, d := range diffs {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\n", d.MemberID, d.Name, d.TotalPoints, d.LedgerSum)
	}
	tw.Flush()
	return fmt.Errorf("%w: %d member(s)", errLedgerMismatch, len(diffs))
}
