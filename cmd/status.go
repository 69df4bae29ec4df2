package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/paulschiretz/pgl-series/pkg/config"
	"github.com/paulschiretz/pgl-series/pkg/engine"
	"github.com/paulschiretz/pgl-series/pkg/flagparse"
	"github.com/paulschiretz/pgl-series/pkg/planner"
	"github.com/paulschiretz/pgl-series/pkg/plog"
	"github.com/paulschiretz/pgl-series/pkg/runerr"
	"github.com/paulschiretz/pgl-series/pkg/seriesindex"
)

// RunStatus prints the state of the series in the destination to out.
func RunStatus(ctx context.Context, log *plog.Logger, flagMap map[string]any, out io.Writer) error {
	destination, ok := flagMap["destination"].(string)
	if !ok || destination == "" {
		return runerr.Newf(runerr.InvalidRequest, "status", "the --destination flag is required to show the status")
	}

	loadedConfig, err := config.Load(log, destination)
	if err != nil {
		return fmt.Errorf("failed to load configuration from destination: %w", err)
	}
	runConfig := config.MergeConfigWithFlags(log, flagparse.Status, loadedConfig, flagMap)
	applyLogSettings(log, runConfig)

	statusPlan, err := planner.GenerateStatusPlan(runConfig)
	if err != nil {
		return err
	}

	// The status command never writes, so the runner needs no workers.
	runner := engine.NewRunner(log, nil, nil, nil, nil)
	st, err := runner.ExecuteStatus(ctx, statusPlan)
	if err != nil {
		return err
	}
	return printStatus(out, st)
}

func printStatus(out io.Writer, st engine.Status) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Series:\t%s\n", st.SeriesPath)
	if !st.Exists {
		fmt.Fprintf(w, "State:\tno series yet\n")
	} else {
		fmt.Fprintf(w, "Schema:\t%d\n", st.Schema)
		fmt.Fprintf(w, "State:\t%s\n", st.State)
	}
	if st.Active != nil {
		fmt.Fprintf(w, "ACTIVE:\t%s %s (%s), started %s\n",
			st.Active.Timestamp, st.Active.Type, st.Active.Status, when(st.Active.Started))
	}

	fmt.Fprintf(w, "\nSnapshots (%d):\n", len(st.Records))
	for _, rec := range st.Records {
		fmt.Fprintf(w, "  %s\t%s\t%s\tfinished %s\t%s\n",
			rec.Timestamp, rec.Type, rec.Status, when(rec.Finished), strings.Join(rec.Sources, ", "))
	}

	fmt.Fprintf(w, "\nRetired series (%d):\n", len(st.Retired))
	for _, dir := range st.Retired {
		fmt.Fprintf(w, "  %s\n", dir)
	}
	return w.Flush()
}

// when formats t as a timestamp with its age. Records written by older versions carry no times.
func when(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%s (%s)", seriesindex.FormatTimestamp(t), humanize.Time(t))
}
