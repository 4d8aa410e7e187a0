package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"ratefeed/internal/currency"
	"ratefeed/internal/fetch"
	"ratefeed/internal/model"
	"ratefeed/internal/series"
	"ratefeed/internal/timezone"
)

// Series is the read side of the series store.
type Series interface {
	Current() []model.Entry
	Subscribe(obs series.Observer) (cancel func())
}

// StatusReporter exposes the fetch pipeline status.
type StatusReporter interface {
	Status() fetch.Status
}

// Dispatcher hands a fetch request to whatever runs it.
type Dispatcher interface {
	Dispatch(ctx context.Context, sel model.Selection) (string, error)
}

// SelectionStore reads and writes the persisted selection.
type SelectionStore interface {
	LoadSelection(ctx context.Context) model.Selection
	SaveSelection(ctx context.Context, sel model.Selection) error
}

// LoadRequest represents the request body for a load
type LoadRequest struct {
	Currency       string `json:"currency" example:"EUR"`
	StartUTCMillis *int64 `json:"start_utc_millis" example:"1704067200000"`
	EndUTCMillis   *int64 `json:"end_utc_millis" example:"1704672000000"`
}

// SelectionRequest represents a partial update of the persisted selection.
// Bounds are local wall-clock millis. With Load set, a fetch for the new
// selection is started as well.
type SelectionRequest struct {
	Currency    *string `json:"currency,omitempty" example:"GBP"`
	StartMillis *int64  `json:"start_millis,omitempty" example:"1704067200000"`
	EndMillis   *int64  `json:"end_millis,omitempty" example:"1704672000000"`
	Load        bool    `json:"load,omitempty" example:"true"`
}

// isInvalidSelection reports whether err comes from validating a selection.
func isInvalidSelection(err error) bool {
	return errors.Is(err, currency.ErrInvalidCodeFormat) ||
		errors.Is(err, currency.ErrUnsupportedCurrency) ||
		errors.Is(err, model.ErrInvertedRange)
}

func validateSelection(sel model.Selection) error {
	if _, err := currency.Parse(string(sel.Currency)); err != nil {
		return err
	}
	return sel.Validate()
}

// HandleGetRates godoc
// @Summary Get the current exchange rate series
// @Description Returns the series currently held in memory, ordered by local timestamp, with the fetch status. Does NOT trigger a fetch. "empty" is true when the series has no points.
// @Tags rates
// @Produce json
// @Success 200 {object} RatesResponse "Current series"
// @Router /rates [get]
func HandleGetRates(store Series, status StatusReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := store.Current()
		writeJSON(w, http.StatusOK, RatesResponse{
			Entries: toEntries(entries),
			Empty:   len(entries) == 0,
			Status:  toStatus(status.Status()),
		})
	}
}

// HandleLoadRates godoc
// @Summary Request an asynchronous fetch
// @Description Starts a fetch for the currency and UTC date range. Returns immediately with a task_id. The series is replaced when the fetch succeeds.
// @Tags rates
// @Accept json
// @Produce json
// @Param request body LoadRequest true "Currency and UTC bounds in epoch millis"
// @Success 202 {object} LoadResponse "Load request accepted"
// @Failure 400 {object} ErrorResponse "Invalid currency or date range"
// @Failure 500 {object} ErrorResponse "Internal error"
// @Router /rates/load [post]
func HandleLoadRates(dispatcher Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON"})
			return
		}
		if req.Currency == "" || req.StartUTCMillis == nil || req.EndUTCMillis == nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "currency, start_utc_millis and end_utc_millis are required"})
			return
		}
		code, err := currency.Parse(req.Currency)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		sel := model.Selection{Currency: code, StartMillis: *req.StartUTCMillis, EndMillis: *req.EndUTCMillis}

		taskID, status, errResp := dispatch(r.Context(), dispatcher, sel)
		if errResp != nil {
			writeJSON(w, status, errResp)
			return
		}
		writeJSON(w, http.StatusAccepted, LoadResponse{TaskID: taskID})
	}
}

func dispatch(ctx context.Context, dispatcher Dispatcher, sel model.Selection) (string, int, *ErrorResponse) {
	if err := validateSelection(sel); err != nil {
		return "", http.StatusBadRequest, &ErrorResponse{Error: err.Error()}
	}
	taskID, err := dispatcher.Dispatch(ctx, sel)
	switch {
	case err == nil:
		return taskID, http.StatusAccepted, nil
	case isInvalidSelection(err):
		return "", http.StatusBadRequest, &ErrorResponse{Error: err.Error()}
	default:
		return "", http.StatusInternalServerError, &ErrorResponse{Error: "Internal error"}
	}
}

// HandleGetSelection godoc
// @Summary Get the persisted selection
// @Description Returns the persisted currency and local date range, or the defaults (USD, last 7 days) when nothing was saved.
// @Tags selection
// @Produce json
// @Success 200 {object} SelectionResponse "Persisted selection"
// @Router /selection [get]
func HandleGetSelection(store SelectionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, toSelection(store.LoadSelection(r.Context())))
	}
}

// HandlePutSelection godoc
// @Summary Update the persisted selection
// @Description Merges the given fields into the persisted selection and saves it. With "load": true, also starts a fetch for the new selection, converting its local bounds to UTC.
// @Tags selection
// @Accept json
// @Produce json
// @Param request body SelectionRequest true "Fields to change"
// @Success 200 {object} SelectionResponse "Saved selection"
// @Failure 400 {object} ErrorResponse "Invalid currency or date range"
// @Failure 500 {object} ErrorResponse "Internal error"
// @Router /selection [put]
func HandlePutSelection(store SelectionStore, dispatcher Dispatcher, offsetAt timezone.OffsetFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SelectionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON"})
			return
		}

		sel := store.LoadSelection(r.Context())
		if req.Currency != nil {
			code, err := currency.Parse(*req.Currency)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
				return
			}
			sel.Currency = code
		}
		if req.StartMillis != nil {
			sel.StartMillis = *req.StartMillis
		}
		if req.EndMillis != nil {
			sel.EndMillis = *req.EndMillis
		}
		if err := validateSelection(sel); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}

		if err := store.SaveSelection(r.Context(), sel); err != nil {
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal error"})
			return
		}
		resp := toSelection(sel)

		if req.Load {
			utc := sel
			utc.StartMillis = timezone.ToUTCMillis(sel.StartMillis, offsetAt)
			utc.EndMillis = timezone.ToUTCMillis(sel.EndMillis, offsetAt)
			taskID, status, errResp := dispatch(r.Context(), dispatcher, utc)
			if errResp != nil {
				writeJSON(w, status, errResp)
				return
			}
			resp.TaskID = taskID
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleListCurrencies godoc
// @Summary List supported currencies
// @Description Returns the closed list of currency codes a fetch can be requested for.
// @Tags rates
// @Produce json
// @Success 200 {object} CurrenciesResponse "Supported currency codes"
// @Router /currencies [get]
func HandleListCurrencies() http.HandlerFunc {
	codes := currency.All()
	resp := CurrenciesResponse{Currencies: make([]string, len(codes))}
	for i, c := range codes {
		resp.Currencies[i] = string(c)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, resp)
	}
}
