package httptransport

import (
	"net/http"
	"strconv"
	"time"

	approoms "chip-ledger/internal/app/rooms"
	"chip-ledger/internal/live"
	"chip-ledger/internal/realtime"
	"chip-ledger/internal/registry"

	"github.com/go-chi/chi/v5"
)

type RoomHandlers struct {
	svc          *approoms.Service
	hub          *realtime.Hub
	sseBuffer    int
	ssePingEvery time.Duration
}

func NewRoomHandlers(svc *approoms.Service, hub *realtime.Hub, sseBuffer int, ssePing time.Duration) *RoomHandlers {
	return &RoomHandlers{svc: svc, hub: hub, sseBuffer: sseBuffer, ssePingEvery: ssePing}
}

func playerIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "playerID"), 10, 64)
	return id, err == nil
}

func (h *RoomHandlers) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cfg registry.RoomConfig
		if !decodeJSON(w, r, &cfg) {
			return
		}
		view, err := h.svc.CreateRoom(r.Context(), cfg)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		metricRoomsCreatedTotal.Add(1)
		writeJSON(w, view)
	}
}

func (h *RoomHandlers) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := h.svc.GetRoom(r.Context(), chi.URLParam(r, "roomID"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, view)
	}
}

func (h *RoomHandlers) State() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := h.svc.State(r.Context(), chi.URLParam(r, "roomID"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, snap)
	}
}

func (h *RoomHandlers) Join() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req approoms.JoinRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		p, err := h.svc.Join(r.Context(), chi.URLParam(r, "roomID"), req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, p)
	}
}

func (h *RoomHandlers) UpdatePlayer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, ok := playerIDParam(r)
		if !ok {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		var patch live.PlayerPatch
		if !decodeJSON(w, r, &patch) {
			return
		}
		p, err := h.svc.UpdatePlayer(r.Context(), chi.URLParam(r, "roomID"), playerID, patch)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, p)
	}
}

func (h *RoomHandlers) RemovePlayer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		playerID, ok := playerIDParam(r)
		if !ok {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		if err := h.svc.RemovePlayer(r.Context(), chi.URLParam(r, "roomID"), playerID); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeOK(w, nil)
	}
}

func (h *RoomHandlers) Reset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.svc.Reset(r.Context(), chi.URLParam(r, "roomID")); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeOK(w, nil)
	}
}

func (h *RoomHandlers) SetDenomination() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ChipsPerHand int64 `json:"chipsPerHand"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		if err := h.svc.SetDenomination(r.Context(), chi.URLParam(r, "roomID"), body.ChipsPerHand); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, body)
	}
}

func (h *RoomHandlers) Settle() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metricSettleRequests.Add(1)
		out, err := h.svc.Settle(r.Context(), chi.URLParam(r, "roomID"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeOK(w, map[string]any{"roomId": out.RoomID, "results": out.Results})
	}
}

func (h *RoomHandlers) History() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, err := h.svc.History(r.Context(), chi.URLParam(r, "roomID"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, room)
	}
}

func (h *RoomHandlers) Events() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		realtime.ServeSSE(w, r, h.hub, chi.URLParam(r, "roomID"), h.sseBuffer, h.ssePingEvery)
	}
}

func (h *RoomHandlers) Debug() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := h.svc.Debug(r.Context(), chi.URLParam(r, "roomID"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, info)
	}
}
