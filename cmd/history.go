package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/cellardex/cellarid/internal/model"
	"github.com/cellardex/cellarid/internal/store"
)

var (
	historyKind    string
	historyMinConf int
	historyLimit   int
	historyJSON    bool
)

var historyCmd = &cobra.Command{
	Use:   "history [request-id]",
	Short: "Show past identifications from the audit log",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		if len(args) == 1 {
			return showIdentification(cmd, st, args[0])
		}

		sums, err := st.ListIdentifications(ctx, store.Filter{
			Kind:          model.InputKind(historyKind),
			MinConfidence: historyMinConf,
			Limit:         historyLimit,
		})
		if err != nil {
			return err
		}

		if historyJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return eris.Wrap(enc.Encode(sums), "encode json")
		}

		for _, sum := range sums {
			name := "(unidentified)"
			if sum.Candidate != nil && sum.Candidate.Name != nil {
				name = *sum.Candidate.Name
			}
			fmt.Printf("%s  %-8s conf=%-3d $%.4f  %s\n",
				sum.RequestID, sum.Kind, sum.Confidence, sum.CostUSD, name)
		}
		return nil
	},
}

func showIdentification(cmd *cobra.Command, st store.Store, id string) error {
	sum, recs, err := st.GetIdentification(cmd.Context(), id)
	if err != nil {
		return err
	}

	if historyJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(map[string]any{
			"identification": sum,
			"escalations":    recs,
		}), "encode json")
	}

	name := "(unidentified)"
	if sum.Candidate != nil && sum.Candidate.Name != nil {
		name = *sum.Candidate.Name
	}
	fmt.Printf("%s  %s  confidence=%d  improved=%v\n", sum.RequestID, name, sum.Confidence, sum.Improved)
	for _, rec := range recs {
		status := "ok"
		if rec.Err != "" {
			status = rec.Err
		}
		fmt.Printf("  %-8s %-28s conf=%-3d %6dms  $%.4f  %s\n",
			rec.Tier, rec.Model, rec.Confidence, rec.DurationMS, rec.CostUSD, status)
	}
	return nil
}

func init() {
	historyCmd.Flags().StringVar(&historyKind, "kind", "", "filter by input kind: text, image, or barcode")
	historyCmd.Flags().IntVar(&historyMinConf, "min-confidence", 0, "only show identifications at or above this confidence")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum rows to show")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print as JSON")
	rootCmd.AddCommand(historyCmd)
}
