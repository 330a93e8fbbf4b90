package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/enrollmail/core/model"
	"github.com/kilianp07/enrollmail/pkg/export"
)

var (
	computeDate   string
	computeFormat string
)

var computeCmd = &cobra.Command{
	Use:   "compute <contact-id>",
	Short: "Compute the emails of a single contact",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompute,
}

func init() {
	computeCmd.Flags().StringVar(&computeDate, "date", "", "reference date YYYY-MM-DD (default today)")
	computeCmd.Flags().StringVarP(&computeFormat, "format", "f", "json", "output format: json or csv")
	rootCmd.AddCommand(computeCmd)
}

func parseDateFlag(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := model.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: %w", s, err)
	}
	return d, nil
}

func runCompute(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid contact id %q", args[0])
	}
	date, err := parseDateFlag(computeDate)
	if err != nil {
		return err
	}
	svc, err := newService()
	if err != nil {
		return err
	}
	defer closeService(svc)

	_, plan, err := svc.ComputeContact(cmd.Context(), id, date)
	if err != nil {
		return err
	}
	return export.Write(cmd.OutOrStdout(), computeFormat, plan.Emails)
}
