package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/maxvaer/apiprobe/internal/output"
	"github.com/maxvaer/apiprobe/internal/store"
)

var historyOpts struct {
	dbPath  string
	limit   int
	id      uint
	json    bool
	noColor bool
}

var historyCmd = &cobra.Command{
	Use:   "history --db <file> [flags]",
	Short: "List or show stored scans",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if historyOpts.dbPath == "" {
			return fmt.Errorf("--db is required")
		}
		if _, err := os.Stat(historyOpts.dbPath); err != nil {
			return fmt.Errorf("--db: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := store.Open(historyOpts.dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		if historyOpts.id != 0 {
			return showScan(os.Stdout, db, historyOpts.id, historyOpts.json, historyOpts.noColor)
		}
		recs, err := db.Recent(historyOpts.limit)
		if err != nil {
			return err
		}
		return listScans(os.Stdout, recs)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	f := historyCmd.Flags()
	f.StringVar(&historyOpts.dbPath, "db", "", "SQLite file written by --db")
	f.IntVarP(&historyOpts.limit, "limit", "n", 20, "Number of scans to list (0 = all)")
	f.UintVar(&historyOpts.id, "id", 0, "Show the full report of one scan")
	f.BoolVar(&historyOpts.json, "json", false, "Print the report as JSON (with --id)")
	f.BoolVar(&historyOpts.noColor, "no-color", false, "Disable colored output")
}

func listScans(w io.Writer, recs []store.ScanRecord) error {
	if len(recs) == 0 {
		_, err := fmt.Fprintln(w, "No scans recorded.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tTARGET\tPATHS\tKEPT\tFORBIDDEN\tERRORS\tFINDINGS\tDURATION")
	for _, r := range recs {
		target := r.Target
		if r.Interrupted {
			target += " (interrupted)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), target,
			r.PathsScanned, r.Kept, r.Forbidden, r.ErrorCount, r.Findings,
			(time.Duration(r.DurationMS) * time.Millisecond).Round(time.Millisecond))
	}
	return tw.Flush()
}

func showScan(w io.Writer, db *store.DB, id uint, asJSON, noColor bool) error {
	rec, err := db.Get(id)
	if err != nil {
		return err
	}
	doc, err := rec.Document()
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
	output.PrintDocument(w, doc, noColor)
	return nil
}
