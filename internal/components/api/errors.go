// SPDX-License-Identifier: AGPL-3.0-or-later
// SPDX-FileCopyrightText: 2025 FamilyAgenda Authors

// Package api provides common HTTP API utilities including error handling.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Error codes returned in the "error" field. Clients match on these, so
// they stay stable across versions.
const (
	CodeMissingToken     = "missing_token"
	CodeInvalidToken     = "invalid_token"
	CodeForbidden        = "forbidden"
	CodeMissingEmail     = "missing_email"
	CodeMissingUserID    = "missing_user_id"
	CodeCannotRemoveSelf = "cannot_remove_self"
	CodeInvalidRole      = "invalid_role"
	CodeMissingFamilyID  = "missing_family_id"
	CodeRateLimited      = "rate_limited"
	CodeBadRequest       = "bad_request"
	CodeInvalidField     = "invalid_field"
	CodeNotFound         = "not_found"
	CodeInternalError    = "internal_error"
)

// ErrorBody is the error response format: {"error": "<code or message>"}.
type ErrorBody struct {
	Error string `json:"error"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes {"error": code}. Store failures pass their message as
// the code verbatim.
func WriteError(w http.ResponseWriter, statusCode int, code string) {
	WriteJSON(w, statusCode, ErrorBody{Error: code})
}

func WriteUnauthorized(w http.ResponseWriter, code string) {
	WriteError(w, http.StatusUnauthorized, code)
}

func WriteForbidden(w http.ResponseWriter) {
	WriteError(w, http.StatusForbidden, CodeForbidden)
}

func WriteBadRequest(w http.ResponseWriter, code string) {
	WriteError(w, http.StatusBadRequest, code)
}

func WriteNotFound(w http.ResponseWriter) {
	WriteError(w, http.StatusNotFound, CodeNotFound)
}

// WriteTooManyRequests writes a 429. The caller sets Retry-After.
func WriteTooManyRequests(w http.ResponseWriter) {
	WriteError(w, http.StatusTooManyRequests, CodeRateLimited)
}

// WriteInternalError writes a 500. Never pass raw error text here.
func WriteInternalError(w http.ResponseWriter, code string) {
	WriteError(w, http.StatusInternalServerError, code)
}

// DecodeJSON reads a JSON body into v. An empty body decodes as "{}".
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
