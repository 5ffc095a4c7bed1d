package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/JakeFAU/talk-catalog-crawler/internal/crawler"
)

// reasonColors tints the status line by terminal reason. fatih/color drops
// the escapes when the output is not a terminal.
var reasonColors = map[crawler.Reason]*color.Color{
	crawler.ReasonExhausted: color.New(color.FgGreen),
	crawler.ReasonFinished:  color.New(color.FgGreen),
	crawler.ReasonCanceled:  color.New(color.FgYellow),
	crawler.ReasonFailed:    color.New(color.FgRed, color.Bold),
}

// writeStatus prints a one-line human summary of a run.
func writeStatus(w io.Writer, summary crawler.Summary) {
	tint, ok := reasonColors[summary.Reason]
	if !ok {
		tint = color.New(color.Reset)
	}
	fmt.Fprintf(w, "%s %s: %d pages, talks %d new / %d updated / %d skipped, speakers %d new / %d updated / %d reused\n",
		tint.Sprintf("%-9s", summary.Reason),
		summary.Source,
		summary.Pages,
		summary.TalksCreated,
		summary.TalksUpdated,
		summary.ItemsSkipped,
		summary.SpeakersCreated,
		summary.SpeakersUpdated,
		summary.SpeakersReused,
	)
	if summary.Error != "" {
		fmt.Fprintf(w, "  %s %s\n", color.New(color.FgRed).Sprint("error:"), summary.Error)
	}
}
