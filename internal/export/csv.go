package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"cantrace/internal/catalog"
	"cantrace/internal/models"
	"cantrace/internal/signal"
)

// DecodedCSV writes one row per frame matching a catalog entry, with a
// column per catalog signal. Columns a frame does not touch carry the
// last known value forward; a column never goes empty once its signal
// has been observed. Undecodable signals keep their previous value.
func DecodedCSV(w io.Writer, frames []models.Frame, cat *catalog.Catalog) error {
	names := cat.SignalNames()

	cw := csv.NewWriter(w)
	header := make([]string, 0, len(names)+1)
	header = append(header, "timestamp")
	header = append(header, names...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	last := make(map[string]string, len(names))
	row := make([]string, len(names)+1)

	for _, f := range frames {
		msg, ok := cat.DefinitionFor(f.ID)
		if !ok {
			continue
		}

		for name, d := range msg.Signals {
			v, err := signal.Decode(f.Bytes, d)
			if err != nil {
				continue
			}
			last[name] = strconv.FormatFloat(v.Physical, 'g', -1, 64)
		}

		row[0] = strconv.FormatFloat(f.RelativeTimestamp/1000.0, 'f', 6, 64)
		for i, name := range names {
			row[i+1] = last[name]
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}
