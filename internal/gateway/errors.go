package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"meridian/internal/models"
)

// backendError is the error body shape returned by the hosted backend's
// query surface.
type backendError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// codeRelationshipNotFound is raised when a requested embedded relation does
// not exist on the backend schema. The feed synchronizer detects this
// condition and falls back to a join-free query.
const codeRelationshipNotFound = "PGRST200"

// classifyHTTP maps a non-2xx gateway response onto the client error
// taxonomy. The backend's human-readable message is preserved when present.
func classifyHTTP(status int, body []byte) error {
	var be backendError
	_ = json.Unmarshal(body, &be)

	msg := be.Message
	if msg == "" {
		msg = fmt.Sprintf("gateway request failed with status %d", status)
	}

	switch {
	case be.Code == codeRelationshipNotFound,
		strings.Contains(strings.ToLower(be.Message), "could not find a relationship"):
		return models.NewSchemaMismatchError(be.Details, fmt.Errorf("%s: %s", be.Code, be.Message))
	case status == 401 || status == 403:
		return models.NewUnauthorizedError(msg)
	case status == 404:
		return &models.AppError{Code: models.CodeNotFound, Message: msg}
	default:
		return models.NewTransientError(msg, fmt.Errorf("status %d: %s", status, be.Message))
	}
}

// classifyTransport maps transport-level failures. Context cancellation is
// distinguished from real errors: aborted operations must never surface a
// notice or mutate state.
func classifyTransport(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return models.NewAbortedError(err)
	}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return models.NewTransientError("", err)
}
