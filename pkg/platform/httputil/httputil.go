package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "solrelay/pkg/domain-errors"
)

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates err into the relay's error envelope:
//
//	{"error": "<code>", "detail": "<message>", ...fields}
//
// Internal errors never expose their message. Errors that are not domain
// errors are reported as internal_error.
func WriteError(w http.ResponseWriter, err error) {
	de, ok := dErrors.As(err)
	if !ok {
		WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": string(dErrors.CodeInternal)})
		return
	}

	body := make(map[string]string, len(de.Fields)+2)
	for k, v := range de.Fields {
		body[k] = v
	}
	body["error"] = string(de.Code)
	if de.Code != dErrors.CodeInternal && de.Message != "" {
		body["detail"] = de.Message
	}
	WriteJSON(w, dErrors.HTTPStatus(de.Code), body)
}

// DecodeJSON decodes the request body into v, rejecting unknown trailing data.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return dErrors.New(dErrors.CodeBadRequest, "empty request body")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}
