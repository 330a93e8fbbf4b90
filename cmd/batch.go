package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilianp07/enrollmail/pkg/export"
)

var (
	batchDate   string
	batchFormat string
	batchOut    string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Schedule every contact of the store once and export the emails",
	Args:  cobra.NoArgs,
	RunE:  runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&batchDate, "date", "", "reference date YYYY-MM-DD (default today)")
	batchCmd.Flags().StringVarP(&batchFormat, "format", "f", "json", "output format: json or csv")
	batchCmd.Flags().StringVarP(&batchOut, "out", "o", "", "output file (default stdout)")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) (err error) {
	date, err := parseDateFlag(batchDate)
	if err != nil {
		return err
	}
	svc, err := newService()
	if err != nil {
		return err
	}
	defer closeService(svc)

	sum, err := svc.RunBatch(cmd.Context(), date)
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if batchOut != "" {
		f, ferr := os.Create(batchOut)
		if ferr != nil {
			return ferr
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		w = f
	}
	if err := export.Write(w, batchFormat, export.Flatten(sum.Result.Emails)); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.ErrOrStderr(), "run %s: %d contacts, %d failed, %d emails, aep weeks %v\n",
		sum.RunID, sum.Contacts, sum.Failed, sum.Emails, sum.Result.Distribution)
	return err
}
