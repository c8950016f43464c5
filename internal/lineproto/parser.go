package lineproto

import (
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
)

// Record is one parsed line-protocol triple. Data holds the byte tokens
// that parsed as 2-digit hex; bad tokens are omitted, not fatal.
type Record struct {
	RawID string
	DLC   int
	Data  []byte
}

// Parser tokenizes transport text into records. It keeps a single
// carryover buffer so a line split across I/O chunks reassembles on the
// next Feed call. Not safe for concurrent use; each transport read loop
// owns one parser.
type Parser struct {
	carry   string
	dropped atomic.Uint64
	logger  *slog.Logger
}

func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// Feed consumes one chunk of transport text and returns the records
// completed by it. The trailing partial line is held until more data
// arrives.
func (p *Parser) Feed(chunk string) []Record {
	buf := p.carry + chunk
	var records []Record

	for {
		nl := strings.IndexByte(buf, '\n')
		if nl < 0 {
			break
		}
		line := buf[:nl]
		buf = buf[nl+1:]

		if rec, ok := p.parseLine(line); ok {
			records = append(records, rec)
		}
	}

	p.carry = buf
	return records
}

// parseLine splits a line on '#' into identifier, declared length, and
// byte tokens. Transports interleave status lines with data lines, so
// anything that is not a well-formed triple is dropped quietly.
func (p *Parser) parseLine(line string) (Record, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Record{}, false
	}

	parts := strings.Split(line, "#")
	if len(parts) != 3 {
		p.drop(line, "not an id#dlc#bytes triple")
		return Record{}, false
	}

	rawID := strings.TrimSpace(parts[0])
	if rawID == "" {
		p.drop(line, "empty identifier")
		return Record{}, false
	}

	dlc, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || dlc < 0 {
		p.drop(line, "bad declared length")
		return Record{}, false
	}

	rec := Record{RawID: rawID, DLC: dlc}
	for _, tok := range strings.Split(parts[2], ",") {
		tok = strings.TrimSpace(tok)
		if len(tok) != 2 {
			continue
		}
		b, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			continue
		}
		rec.Data = append(rec.Data, byte(b))
	}

	return rec, true
}

func (p *Parser) drop(line, reason string) {
	p.dropped.Add(1)
	p.logger.Debug("dropping line", "reason", reason, "line", line)
}

// Dropped returns the number of lines discarded so far.
func (p *Parser) Dropped() uint64 {
	return p.dropped.Load()
}
