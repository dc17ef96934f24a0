package httptransport

import (
	"net/http"
	"strconv"
	"strings"

	apprecords "chip-ledger/internal/app/records"

	"github.com/go-chi/chi/v5"
)

type RecordHandlers struct {
	svc *apprecords.Service
}

func NewRecordHandlers(svc *apprecords.Service) *RecordHandlers {
	return &RecordHandlers{svc: svc}
}

func (h *RecordHandlers) RoomResults() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := h.svc.RoomResults(r.Context(), chi.URLParam(r, "roomID"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, resp)
	}
}

func (h *RecordHandlers) UserRecords() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := ParsePagination(r)
		resp, err := h.svc.UserRecords(r.Context(), chi.URLParam(r, "userID"), limit, offset)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, resp)
	}
}

func (h *RecordHandlers) UserStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := h.svc.UserStats(r.Context(), chi.URLParam(r, "userID"), r.URL.Query().Get("currency"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, resp)
	}
}

func (h *RecordHandlers) Monthly() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year, okYear := queryInt(r, "year")
		month, okMonth := queryInt(r, "month")
		if !okYear || !okMonth {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		resp, err := h.svc.MonthlyStats(r.Context(), chi.URLParam(r, "userID"), r.URL.Query().Get("currency"), year, month)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, resp)
	}
}

func (h *RecordHandlers) HeadToHead() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp, err := h.svc.HeadToHead(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "opponentID"), r.URL.Query().Get("currency"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, resp)
	}
}

func (h *RecordHandlers) Rename() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Nickname string `json:"nickname"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		n, err := h.svc.RenameUser(r.Context(), chi.URLParam(r, "userID"), body.Nickname)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeOK(w, map[string]any{"updated": n})
	}
}

func (h *RecordHandlers) AddManual() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body apprecords.ManualRecord
		if !decodeJSON(w, r, &body) {
			return
		}
		resp, err := h.svc.AddManualRecord(r.Context(), chi.URLParam(r, "userID"), body)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeOK(w, map[string]any{"recordId": resp.RecordID, "roomId": resp.RoomID})
	}
}

func recordParams(r *http.Request) (int64, string, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "recordID"), 10, 64)
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	return id, userID, err == nil && userID != ""
}

func (h *RecordHandlers) CanDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, userID, ok := recordParams(r)
		if !ok {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		resp, err := h.svc.CanDelete(r.Context(), id, userID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, resp)
	}
}

func (h *RecordHandlers) Delete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, userID, ok := recordParams(r)
		if !ok {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		if err := h.svc.DeleteRecord(r.Context(), id, userID); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeOK(w, nil)
	}
}
