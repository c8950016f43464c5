package export

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"cantrace/internal/canid"
	"cantrace/internal/models"
)

// Trace writes the frame log as a fixed-width trace: a comment header
// block, then one row per frame. Columns: 7-digit sequence number,
// 12-character timestamp in seconds with 6 decimals, direction marker,
// 12-character upper-case hex identifier, Rx, 2-digit declared length,
// space-joined hex byte pairs.
func Trace(w io.Writer, frames []models.Frame, sessionStart time.Time) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, ";$FILEVERSION=1.1")
	fmt.Fprintf(bw, ";$STARTTIME=%d\n", sessionStart.Unix())
	fmt.Fprintln(bw, ";")
	fmt.Fprintf(bw, ";   Start time: %s\n", sessionStart.Format(time.RFC3339))
	fmt.Fprintln(bw, ";   Direction: Rx")
	fmt.Fprintln(bw, ";")
	fmt.Fprintln(bw, ";-------------------------------------------------------------------------------")

	for i, f := range frames {
		_, err := fmt.Fprintf(bw, "%7d %12.6f DT %12s Rx %2d %s\n",
			i+1,
			f.RelativeTimestamp/1000.0,
			f.IDHex(),
			f.DataLength,
			f.DataHex(),
		)
		if err != nil {
			return fmt.Errorf("failed to write trace row: %w", err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace: %w", err)
	}
	return nil
}

// FilterByID returns the frames whose identifier is in ids; with no ids
// it returns frames unchanged.
func FilterByID(frames []models.Frame, ids ...canid.CanonicalID) []models.Frame {
	if len(ids) == 0 {
		return frames
	}
	want := make(map[canid.CanonicalID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make([]models.Frame, 0, len(frames))
	for _, f := range frames {
		if _, ok := want[f.ID]; ok {
			out = append(out, f)
		}
	}
	return out
}
