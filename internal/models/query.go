package models

import (
	"time"

	"cantrace/internal/canid"
)

// QueryParams holds common filter parameters for frame queries
type QueryParams struct {
	StartTime *time.Time
	EndTime   *time.Time
	CANID     *canid.CanonicalID
	Limit     int
	Offset    int
}
