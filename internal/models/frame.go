package models

import (
	"fmt"
	"strings"
	"time"

	"cantrace/internal/canid"
)

// Direction marks which way a frame traveled. Capture is receive-only
// today; the field stays for future transmit support.
type Direction string

const DirectionRx Direction = "Rx"

// Frame is one decoded CAN bus event.
type Frame struct {
	ID                canid.CanonicalID
	DataLength        int
	Bytes             []byte
	RelativeTimestamp float64 // milliseconds since session start
	AbsoluteTimestamp time.Time
	Direction         Direction
	OccurrenceCount   uint64 // times this id has been seen this session
	PeriodMs          float64
}

// IDHex returns the upper-case hex presentation of the identifier.
func (f Frame) IDHex() string {
	return canid.DisplayHex(f.ID)
}

// DataHex renders the payload as space-joined upper-case hex pairs.
func (f Frame) DataHex() string {
	var b strings.Builder
	for i, by := range f.Bytes {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", by)
	}
	return b.String()
}

// FrameResponse represents a frame in API responses.
type FrameResponse struct {
	Timestamp  time.Time         `json:"timestamp"`
	RelativeMs float64           `json:"relative_ms"`
	CANID      string            `json:"can_id"`
	CANIDHex   string            `json:"can_id_hex"`
	DLC        int               `json:"dlc"`
	Data       []uint8           `json:"data"`
	DataHex    string            `json:"data_hex"`
	Direction  string            `json:"direction"`
	Count      uint64            `json:"count"`
	PeriodMs   float64           `json:"period_ms"`
	Message    string            `json:"message,omitempty"`
	Signals    map[string]string `json:"signals,omitempty"`
}

// NewFrameResponse converts a frame for API output. Decoded signals are
// attached by the caller when a catalog entry matches.
func NewFrameResponse(f Frame) FrameResponse {
	return FrameResponse{
		Timestamp:  f.AbsoluteTimestamp,
		RelativeMs: f.RelativeTimestamp,
		CANID:      string(f.ID),
		CANIDHex:   f.IDHex(),
		DLC:        f.DataLength,
		Data:       f.Bytes,
		DataHex:    f.DataHex(),
		Direction:  string(f.Direction),
		Count:      f.OccurrenceCount,
		PeriodMs:   f.PeriodMs,
	}
}
