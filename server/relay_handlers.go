package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/jrsteele09/go-code-relay/relay"
	"github.com/rs/zerolog"
)

const (
	contentTypeText = "text/plain; charset=utf-8"
	contentTypeJSON = "application/json; charset=utf-8"

	maxWithdrawBodyBytes = 4 << 10
)

// Messages returned to the browser and the polling client
const (
	msgMissingCodeOrState = "PROXY: No code or state provided. Please ensure you are using the correct redirect URL."
	msgMissingState       = "PROXY: No state provided. Please provide a state parameter."
	msgNoCodeStored       = "PROXY: No auth code stored in proxy."
	msgStateMismatch      = "PROXY: State mismatch. Please ensure you are using the correct state parameter."
	msgInternal           = "PROXY: Internal error. Please try again."

	msgCodeStored  = "Code stored!"
	msgErrorStored = "Authorization error stored!"
)

// Machine-readable failure reasons, sent next to the message
const (
	ReasonMissingCodeOrState = "missing_code_or_state"
	ReasonMissingState       = "missing_state"
	ReasonNoCodeStored       = "no_code_stored"
	ReasonStateMismatch      = "state_mismatch"
	ReasonProviderError      = "provider_error"
	ReasonInternal           = "internal"
)

// DepositHandler receives the provider redirect. Parameters are read from the
// query string or a form body.
func (s *Server) DepositHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deposit := relay.Deposit{
			Code:             r.FormValue("code"),
			State:            r.FormValue("state"),
			Error:            r.FormValue("error"),
			ErrorDescription: r.FormValue("error_description"),
		}

		if err := s.relay.Deposit(r.Context(), deposit); err != nil {
			writeRelayError(w, r, err)
			return
		}

		msg := msgCodeStored
		if deposit.Error != "" {
			msg = msgErrorStored
		}
		w.Header().Set("Content-Type", contentTypeText)
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, msg)
	}
}

// WithdrawHandler hands the stored code to the polling client
func (s *Server) WithdrawHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, err := s.relay.Withdraw(r.Context(), withdrawState(r))
		if err != nil {
			writeRelayError(w, r, err)
			return
		}
		writeJSON(w, map[string]string{"code": code}, http.StatusOK)
	}
}

// PreflightHandler answers CORS preflight requests; the headers themselves
// come from CorsMiddleware.
func (s *Server) PreflightHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

// MethodNotAllowedHandler refuses verbs that are routed only to be rejected
func (s *Server) MethodNotAllowedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", s.config.GetAllowedMethods())
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// withdrawState looks for the state in the query string first, then in a
// JSON or form body.
func withdrawState(r *http.Request) string {
	if state := r.URL.Query().Get("state"); state != "" {
		return state
	}
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body struct {
			State string `json:"state"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, maxWithdrawBodyBytes)).Decode(&body); err != nil {
			zerolog.Ctx(r.Context()).Debug().Err(err).Msg("Unreadable withdraw body")
			return ""
		}
		return body.State
	}

	r.Body = http.MaxBytesReader(nil, r.Body, maxWithdrawBodyBytes)
	return r.PostFormValue("state")
}

// relayErrorMessage turns an expected relay failure into the message shown
// to the caller and its reason. A provider error is passed through as the
// provider sent it.
func relayErrorMessage(err error) (message, reason string) {
	var providerErr *relay.ProviderError
	switch {
	case errors.As(err, &providerErr):
		return providerErr.Error(), ReasonProviderError
	case errors.Is(err, relay.ErrMissingCodeOrState):
		return msgMissingCodeOrState, ReasonMissingCodeOrState
	case errors.Is(err, relay.ErrMissingState):
		return msgMissingState, ReasonMissingState
	case errors.Is(err, relay.ErrNoCodeStored):
		return msgNoCodeStored, ReasonNoCodeStored
	case errors.Is(err, relay.ErrStateMismatch):
		return msgStateMismatch, ReasonStateMismatch
	default:
		return msgInternal, ReasonInternal
	}
}

func writeRelayError(w http.ResponseWriter, r *http.Request, err error) {
	if !relay.IsRelayError(err) {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("method", r.Method).Msg("Relay request failed")
		writeJSONError(w, msgInternal, ReasonInternal, http.StatusInternalServerError)
		return
	}
	zerolog.Ctx(r.Context()).Info().Err(err).Str("method", r.Method).Msg("Relay request rejected")
	message, reason := relayErrorMessage(err)
	writeJSONError(w, message, reason, http.StatusBadRequest)
}

// writeJSONError writes a relay error response
func writeJSONError(w http.ResponseWriter, message, reason string, statusCode int) {
	writeJSON(w, map[string]string{"error": message, "reason": reason}, statusCode)
}

func writeJSON(w http.ResponseWriter, body any, statusCode int) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}
