// Package api implements HTTP handlers for the exchange rate feed.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"ratefeed/internal/fetch"
	"ratefeed/internal/model"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error" example:"unsupported currency"`
}

// EntryResponse is one point of the series.
type EntryResponse struct {
	Timestamp float64 `json:"timestamp" example:"1704067200000"`
	Rate      float64 `json:"rate" example:"17.05"`
}

// OutcomeResponse describes the latest completed fetch.
type OutcomeResponse struct {
	RequestID  uint64  `json:"request_id" example:"3"`
	Currency   string  `json:"currency" example:"EUR"`
	Result     string  `json:"result" example:"SUCCEEDED"`
	Error      *string `json:"error,omitempty" example:"rates source unavailable: connection refused"`
	Rows       int     `json:"rows" example:"24"`
	Entries    int     `json:"entries" example:"23"`
	Skipped    int     `json:"skipped" example:"1"`
	FinishedAt string  `json:"finished_at" example:"2025-12-01T10:15:30Z"`
}

// StatusResponse is the fetch pipeline status.
type StatusResponse struct {
	State    string           `json:"state" example:"IDLE"`
	InFlight int              `json:"in_flight" example:"0"`
	Last     *OutcomeResponse `json:"last,omitempty"`
}

// RatesResponse is the current series plus the fetch status.
type RatesResponse struct {
	Entries []EntryResponse `json:"entries"`
	// Empty is true when the series genuinely has no points.
	Empty  bool           `json:"empty" example:"false"`
	Status StatusResponse `json:"status"`
}

// SelectionResponse is the persisted selection, in local wall-clock millis.
type SelectionResponse struct {
	Currency    string `json:"currency" example:"EUR"`
	StartMillis int64  `json:"start_millis" example:"1704067200000"`
	EndMillis   int64  `json:"end_millis" example:"1704672000000"`
	TaskID      string `json:"task_id,omitempty" example:"7"`
}

// LoadResponse represents the response for an accepted load request
type LoadResponse struct {
	TaskID string `json:"task_id" example:"123e4567-e89b-12d3-a456-426614174000"`
}

// CurrenciesResponse lists the supported currency codes.
type CurrenciesResponse struct {
	Currencies []string `json:"currencies" example:"EUR,GBP,JPY"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func toEntries(entries []model.Entry) []EntryResponse {
	out := make([]EntryResponse, len(entries))
	for i, e := range entries {
		out[i] = EntryResponse{Timestamp: e.TimestampLocalMillis, Rate: e.Rate}
	}
	return out
}

func toStatus(st fetch.Status) StatusResponse {
	resp := StatusResponse{State: string(st.State), InFlight: st.InFlight}
	if last := st.Last; last != nil {
		resp.Last = &OutcomeResponse{
			RequestID:  last.RequestID,
			Currency:   string(last.Selection.Currency),
			Result:     string(last.Result),
			Rows:       last.Rows,
			Entries:    last.Entries,
			Skipped:    last.Skipped,
			FinishedAt: last.FinishedAt.UTC().Format(time.RFC3339),
		}
		if last.Err != nil {
			msg := last.Err.Error()
			resp.Last.Error = &msg
		}
	}
	return resp
}

func toSelection(sel model.Selection) SelectionResponse {
	return SelectionResponse{Currency: string(sel.Currency), StartMillis: sel.StartMillis, EndMillis: sel.EndMillis}
}
