package transfer

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// newBar builds a progress bar writing to w. Engines are handed the writer
// by the caller: os.Stderr for interactive runs, io.Discard under test.
func newBar(w io.Writer, total int, desc string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

// finishBar closes out a bar if one is active.
func finishBar(bar *progressbar.ProgressBar) {
	if bar != nil {
		_ = bar.Finish()
	}
}
