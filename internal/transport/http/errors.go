package httptransport

import (
	"errors"
	"net/http"

	"chip-ledger/internal/app/records"
	"chip-ledger/internal/app/rooms"
	"chip-ledger/internal/live"
	"chip-ledger/internal/registry"

	"github.com/rs/zerolog/log"
)

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: nickname errors wrap ErrInvalidPatch and must win.
var errorMappings = []errorMapping{
	{registry.ErrSettledRoomNotFound, http.StatusNotFound, "room_not_found"},
	{registry.ErrRoomNotFound, http.StatusNotFound, "room_not_found"},
	{live.ErrPlayerNotFound, http.StatusNotFound, "player_not_found"},
	{records.ErrRecordNotFound, http.StatusNotFound, "record_not_found"},
	{live.ErrNicknameRequired, http.StatusBadRequest, "nickname_required"},
	{live.ErrNicknameTooLong, http.StatusBadRequest, "nickname_too_long"},
	{live.ErrInvalidPatch, http.StatusBadRequest, "invalid_request"},
	{registry.ErrInvalidConfig, http.StatusBadRequest, "invalid_request"},
	{rooms.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
	{records.ErrInvalidRequest, http.StatusBadRequest, "invalid_request"},
	{records.ErrRecordNotDeletable, http.StatusConflict, "record_not_deletable"},
	{registry.ErrExhaustedIDSpace, http.StatusInternalServerError, "room_id_exhausted"},
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			WriteHTTPError(w, m.status, m.code)
			return
		}
	}
	metricHTTPInternalErrors.Add(1)
	log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
}
