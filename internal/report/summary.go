package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/JonMunkholm/conversion-replay/internal/core"
	"github.com/JonMunkholm/conversion-replay/internal/replay"
)

// TopCategoryCount is how many failure categories the summary lists.
const TopCategoryCount = 5

// WriteSummary renders a human-readable summary of a run.
func WriteSummary(w io.Writer, res *replay.Result) error {
	s := res.Snapshot
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	source := res.Source
	if source == "" {
		source = "(in memory)"
	}

	fmt.Fprintf(tw, "Run:\t%s\n", res.RunID)
	fmt.Fprintf(tw, "Channel:\t%s\n", res.Channel)
	fmt.Fprintf(tw, "Source:\t%s\n", filepath.Base(source))
	fmt.Fprintf(tw, "Duration:\t%s\n", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	if res.Stopped {
		fmt.Fprintf(tw, "Status:\tstopped before completion\n")
	}
	fmt.Fprintln(tw)

	fmt.Fprintf(tw, "Records:\t%d\n", s.Total)
	fmt.Fprintf(tw, "Sent:\t%d\n", s.Sent)
	fmt.Fprintf(tw, "Failed:\t%d\n", s.Failed)
	fmt.Fprintf(tw, "Skipped:\t%d\n", s.Skipped)
	fmt.Fprintf(tw, "Retried:\t%d\n", s.Retried)
	fmt.Fprintf(tw, "Success rate:\t%s\n", core.FormatPercent(s.SuccessRate()))
	fmt.Fprintf(tw, "Progress:\t%s\n", core.FormatPercent(s.Progress()))
	if res.Dropped > 0 {
		fmt.Fprintf(tw, "Dropped lines:\t%d\n", res.Dropped)
	}

	if codes := s.SortedStatusCodes(); len(codes) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "Status codes:")
		for _, code := range codes {
			fmt.Fprintf(tw, "  %s\t%d\n", statusLabel(code), s.StatusCodes[code])
		}
	}

	if top := s.TopCategories(TopCategoryCount); len(top) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "Top failure categories:")
		for _, c := range top {
			msg := core.Describe(c.Code)
			fmt.Fprintf(tw, "  %s\t%d\t%s. %s\n", c.Code, c.Count, msg.Message, msg.Action)
		}
	}

	if len(res.Warnings) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "Parser warnings:")
		for _, warn := range res.Warnings {
			fmt.Fprintf(tw, "  %s\n", warn)
		}
	}

	return tw.Flush()
}

// Summary returns WriteSummary's output as a string.
func Summary(res *replay.Result) string {
	var b strings.Builder
	_ = WriteSummary(&b, res)
	return b.String()
}

func statusLabel(code int) string {
	if code == core.NetworkErrorCode {
		return "network error"
	}
	return fmt.Sprintf("%d", code)
}
