package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"lv-tradesim/internal/apperr"

	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

type ErrorResponse struct {
	Error string `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ReadJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return errors.New("invalid json body")
	}
	return nil
}

// WriteError maps err onto its taxonomy status. Internal causes are logged
// and replaced with a generic message.
func WriteError(w http.ResponseWriter, log zerolog.Logger, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		log.Error().Err(err).Msg("request failed")
	}
	WriteJSON(w, kind.Status(), ErrorResponse{Error: apperr.Message(err)})
}
