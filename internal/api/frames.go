package api

import (
	"net/http"

	"cantrace/internal/canid"
	"cantrace/internal/catalog"
	"cantrace/internal/engine"
	"cantrace/internal/models"
	"cantrace/internal/signal"
)

// FrameAPI handles HTTP API requests over the live frame log
type FrameAPI struct {
	engine  *engine.Engine
	catalog *catalog.Catalog
}

// NewFrameAPI creates a new frame API handler
func NewFrameAPI(eng *engine.Engine, cat *catalog.Catalog) *FrameAPI {
	return &FrameAPI{engine: eng, catalog: cat}
}

// GetLatest returns the most recent frame per live identifier, decoded
// where the catalog has a definition.
// GET /api/frames/latest
func (api *FrameAPI) GetLatest(w http.ResponseWriter, r *http.Request) {
	frames := api.engine.LatestFrames()

	responses := make([]models.FrameResponse, 0, len(frames))
	for _, f := range frames {
		responses = append(responses, decorate(models.NewFrameResponse(f), f, api.catalog))
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"count":  len(responses),
		"frames": responses,
	})
}

// GetLog returns a page of the frame log, newest first, with optional
// identifier filter.
// GET /api/frames/log?can_id=0x123&limit=100&offset=0
func (api *FrameAPI) GetLog(w http.ResponseWriter, r *http.Request) {
	params, err := parseQueryParams(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	log := api.engine.Log()

	// Walk newest first, applying the identifier filter before paging.
	responses := make([]models.FrameResponse, 0, params.Limit)
	skipped := 0
	for i := len(log) - 1; i >= 0 && len(responses) < params.Limit; i-- {
		f := log[i]
		if params.CANID != nil && f.ID != *params.CANID {
			continue
		}
		if skipped < params.Offset {
			skipped++
			continue
		}
		responses = append(responses, decorate(models.NewFrameResponse(f), f, api.catalog))
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"total":  len(log),
		"count":  len(responses),
		"frames": responses,
	})
}

// GetCatalogMessages lists the loaded message definitions.
// GET /api/catalog/messages
func (api *FrameAPI) GetCatalogMessages(w http.ResponseWriter, r *http.Request) {
	type signalInfo struct {
		StartBit   int     `json:"start_bit"`
		BitLength  int     `json:"bit_length"`
		Endianness string  `json:"endianness"`
		Signed     bool    `json:"signed"`
		Scale      float64 `json:"scale"`
		Offset     float64 `json:"offset"`
		Unit       string  `json:"unit"`
		Min        float64 `json:"min"`
		Max        float64 `json:"max"`
	}
	type messageInfo struct {
		CANID      string                `json:"can_id"`
		CANIDHex   string                `json:"can_id_hex"`
		Name       string                `json:"name"`
		DataLength int                   `json:"data_length"`
		Signals    map[string]signalInfo `json:"signals"`
	}

	messages := make([]messageInfo, 0, api.catalog.Len())
	for _, id := range api.catalog.IDs() {
		msg, _ := api.catalog.DefinitionFor(id)
		info := messageInfo{
			CANID:      string(id),
			CANIDHex:   canid.DisplayHex(id),
			Name:       msg.Name,
			DataLength: msg.DataLength,
			Signals:    make(map[string]signalInfo, len(msg.Signals)),
		}
		for name, d := range msg.Signals {
			info.Signals[name] = signalInfo{
				StartBit:   d.StartBit,
				BitLength:  d.BitLength,
				Endianness: d.Endianness.String(),
				Signed:     d.Signed,
				Scale:      d.Scale,
				Offset:     d.Offset,
				Unit:       d.Unit,
				Min:        d.Min,
				Max:        d.Max,
			}
		}
		messages = append(messages, info)
	}

	respondWithJSON(w, http.StatusOK, map[string]any{
		"count":    len(messages),
		"messages": messages,
	})
}

// decorate attaches the message name and decoded signal displays when
// the catalog knows the identifier.
func decorate(resp models.FrameResponse, f models.Frame, cat *catalog.Catalog) models.FrameResponse {
	msg, ok := cat.DefinitionFor(f.ID)
	if !ok {
		return resp
	}

	resp.Message = msg.Name
	resp.Signals = make(map[string]string, len(msg.Signals))
	for name, d := range msg.Signals {
		v, err := signal.Decode(f.Bytes, d)
		if err != nil {
			continue // undecodable signals are omitted, the frame stays
		}
		resp.Signals[name] = v.Display
	}
	return resp
}
