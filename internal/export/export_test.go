package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cantrace/internal/canid"
	"cantrace/internal/catalog"
	"cantrace/internal/models"
)

func testFrame(id string, relMs float64, data ...byte) models.Frame {
	return models.Frame{
		ID:                canid.CanonicalID(id),
		DataLength:        len(data),
		Bytes:             data,
		RelativeTimestamp: relMs,
		Direction:         models.DirectionRx,
	}
}

func TestTraceFormat(t *testing.T) {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	frames := []models.Frame{
		testFrame("256", 1234.5, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08),
		testFrame("2418544720", 1260.0, 0x32),
	}

	var sb strings.Builder
	require.NoError(t, Trace(&sb, frames, start))

	lines := strings.Split(strings.TrimRight(sb.String(), "\n"), "\n")
	require.Len(t, lines, 9)

	assert.Equal(t, ";$FILEVERSION=1.1", lines[0])
	assert.Equal(t, ";$STARTTIME=1773478800", lines[1])
	assert.True(t, strings.HasPrefix(lines[6], ";---"))

	// Fixed-width columns: sequence, seconds, DT, hex id, Rx, dlc, bytes.
	assert.Equal(t, "      1     1.234500 DT          100 Rx  8 01 02 03 04 05 06 07 08", lines[7])
	assert.Equal(t, "      2     1.260000 DT     90281050 Rx  1 32", lines[8])
}

func TestTraceEmptyLog(t *testing.T) {
	var sb strings.Builder
	require.NoError(t, Trace(&sb, nil, time.Unix(0, 0)))

	for _, line := range strings.Split(strings.TrimRight(sb.String(), "\n"), "\n") {
		assert.True(t, strings.HasPrefix(line, ";"), "header only, no data rows")
	}
}

func TestFilterByID(t *testing.T) {
	frames := []models.Frame{
		testFrame("256", 0, 0x01),
		testFrame("512", 1, 0x02),
		testFrame("256", 2, 0x03),
	}

	assert.Len(t, FilterByID(frames), 3, "no ids means no filter")

	got := FilterByID(frames, canid.CanonicalID("256"))
	require.Len(t, got, 2)
	assert.Equal(t, []byte{0x01}, got[0].Bytes)
	assert.Equal(t, []byte{0x03}, got[1].Bytes)

	assert.Empty(t, FilterByID(frames, canid.CanonicalID("999")))
}

const exportCatalog = `
messages:
  "256":
    name: Battery
    data_length: 2
    signals:
      Pack_Voltage:
        start_bit: 0
        bit_length: 16
        endianness: intel
        scale: 0.1
        offset: 0
        unit: V
  "2418544720":
    name: Charger_Status
    data_length: 1
    signals:
      State_of_Charger_SOC:
        start_bit: 0
        bit_length: 8
        scale: 1
        offset: 0
        unit: "%"
`

func TestDecodedCSVForwardFill(t *testing.T) {
	cat, err := catalog.Parse([]byte(exportCatalog))
	require.NoError(t, err)

	frames := []models.Frame{
		testFrame("2418544720", 0, 0x32),   // SOC = 50
		testFrame("999", 50, 0xFF),         // no catalog entry, skipped
		testFrame("256", 100, 0xD0, 0x07),  // voltage = 0x07D0 * 0.1 = 200
		testFrame("2418544720", 150),       // empty payload: undecodable, SOC holds
		testFrame("2418544720", 200, 0x64), // SOC = 100
	}

	var sb strings.Builder
	require.NoError(t, DecodedCSV(&sb, frames, cat))

	rows, err := csv.NewReader(strings.NewReader(sb.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)

	assert.Equal(t, []string{"timestamp", "Pack_Voltage", "State_of_Charger_SOC"}, rows[0])
	assert.Equal(t, []string{"0.000000", "", "50"}, rows[1])
	assert.Equal(t, []string{"0.100000", "200", "50"}, rows[2], "voltage row carries SOC forward")
	assert.Equal(t, []string{"0.150000", "200", "50"}, rows[3], "undecodable frame keeps the last value")
	assert.Equal(t, []string{"0.200000", "200", "100"}, rows[4])
}

func TestSpoolWritesTraceFile(t *testing.T) {
	dir := t.TempDir()
	s := &Spool{Dir: filepath.Join(dir, "spool"), SessionStart: time.Unix(1700000000, 0)}

	require.NoError(t, s.ExportLog([]models.Frame{testFrame("256", 500, 0xAA)}))

	matches, err := filepath.Glob(filepath.Join(s.Dir, "capture_*.trc"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), ";$STARTTIME=1700000000")
	assert.Contains(t, string(data), "100 Rx  1 AA")
}
