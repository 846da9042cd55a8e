package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dErrors "solrelay/pkg/domain-errors"
)

func TestWriteError(t *testing.T) {
	t.Run("internal error omits detail", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInternal, "redis exploded"))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "internal_error" {
			t.Fatalf("expected error code internal_error, got %q", body["error"])
		}
		if _, ok := body["detail"]; ok {
			t.Fatalf("expected detail to be omitted for internal errors")
		}
	})

	t.Run("conflict includes detail", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeNonceReplay, "nonce already used"))

		if w.Code != http.StatusConflict {
			t.Fatalf("expected status %d, got %d", http.StatusConflict, w.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["error"] != "nonce_replay" {
			t.Fatalf("expected error code nonce_replay, got %q", body["error"])
		}
		if body["detail"] != "nonce already used" {
			t.Fatalf("expected detail to be returned, got %q", body["detail"])
		}
	})

	t.Run("fields are merged into the body", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeInvalidPayer, "fee payer mismatch").
			WithField("expected", "relayer").
			WithField("got", "someone"))

		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body["expected"] != "relayer" || body["got"] != "someone" {
			t.Fatalf("unexpected fields: %v", body)
		}
	})

	t.Run("plain errors become internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, errors.New("boom"))

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Nonce string `json:"nonce"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nonce":"abc"}`))
	if err := DecodeJSON(r, &v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Nonce != "abc" {
		t.Fatalf("expected nonce abc, got %q", v.Nonce)
	}

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`not json`))
	err := DecodeJSON(r, &v)
	if !dErrors.Is(err, dErrors.CodeBadRequest) {
		t.Fatalf("expected bad_request, got %v", err)
	}
}
