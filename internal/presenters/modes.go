// Package presenters renders host state for terminal output.
package presenters

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/glizzus/adsp-host/internal/addonmgr"
	"github.com/glizzus/adsp-host/internal/adsp"
)

const noModesFound = "No modes registered."

// WriteModes prints modes as an aligned table.
func WriteModes(w io.Writer, modes []adsp.Mode) error {
	if len(modes) == 0 {
		_, err := fmt.Fprintln(w, noModesFound)
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCLIENT\tSTAGE\tNUMBER\tNAME\tDISABLED")
	for _, m := range modes {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t%s\t%t\n",
			m.UniqueDBModeID, m.AddonID, m.Type, m.Number, m.Name, m.Disabled)
	}
	return tw.Flush()
}

// FormatEvent renders one lifecycle event on a single line.
func FormatEvent(e addonmgr.Event) string {
	line := fmt.Sprintf("%s  %s", e.Time.UTC().Format(time.RFC3339), e.Type)
	if e.AddonID != "" {
		line += "  " + e.AddonID
	}
	return line
}
