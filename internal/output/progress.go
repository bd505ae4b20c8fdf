package output

import (
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Progress draws a progress bar on stderr. A quiet Progress does nothing.
type Progress struct {
	bar *progressbar.ProgressBar
}

// NewProgress returns a bar sized for total paths.
func NewProgress(total int, quiet, noColor bool) *Progress {
	if quiet || total == 0 {
		return &Progress{}
	}
	return newProgress(os.Stderr, total, noColor)
}

func newProgress(w io.Writer, total int, noColor bool) *Progress {
	theme := progressbar.Theme{
		Saucer:        "[green]=[reset]",
		SaucerHead:    "[green]>[reset]",
		SaucerPadding: " ",
		BarStart:      "[",
		BarEnd:        "]",
	}
	desc := "[cyan]Probing[reset]"
	if noColor {
		theme = progressbar.Theme{Saucer: "=", SaucerHead: ">", SaucerPadding: " ", BarStart: "[", BarEnd: "]"}
		desc = "Probing"
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(!noColor),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("req"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionThrottle(100 * time.Millisecond),
		progressbar.OptionSetTheme(theme),
		progressbar.OptionOnCompletion(func() { io.WriteString(w, "\n") }),
	)
	return &Progress{bar: bar}
}

// Increment records one processed path.
func (p *Progress) Increment() {
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

// SetPaused switches the description while the scan is paused.
func (p *Progress) SetPaused(paused bool) {
	if p.bar == nil {
		return
	}
	if paused {
		p.bar.Describe("PAUSED (Enter to resume)")
	} else {
		p.bar.Describe("Probing")
	}
}

// Stop finishes the bar.
func (p *Progress) Stop() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// Clear erases the bar so a result line can be printed cleanly. The bar is
// redrawn on the next Increment.
func (p *Progress) Clear() {
	if p.bar != nil {
		_ = p.bar.Clear()
	}
}
