package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/taar-app/ticketsync/internal/flow"
	"github.com/taar-app/ticketsync/internal/luma"
	"github.com/taar-app/ticketsync/internal/relay"
	"github.com/taar-app/ticketsync/internal/session"
	apperrors "github.com/taar-app/ticketsync/pkg/errors"
	"github.com/taar-app/ticketsync/pkg/httputil"
	"github.com/taar-app/ticketsync/pkg/logger"
	"github.com/taar-app/ticketsync/pkg/middleware"
	"github.com/taar-app/ticketsync/pkg/validator"
)

// SessionHandler serves the session API: each session is one sign-in
// attempt, driven by commands and rendered as a provider-specific view.
type SessionHandler struct {
	store  *session.Store
	logger *slog.Logger
}

// NewSessionHandler creates a session API handler.
func NewSessionHandler(store *session.Store, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{store: store, logger: logger}
}

type createSessionRequest struct {
	Provider string `json:"provider" validate:"required,max=32"`
}

type sessionResponse struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	View     any    `json:"view"`
}

func render(sess *session.Session) sessionResponse {
	return sessionResponse{
		ID:       sess.ID.String(),
		Provider: sess.Flow.Provider(),
		View:     sess.Flow.View(),
	}
}

// Create handles POST /api/v1/sessions.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	if !h.store.Supports(req.Provider) {
		httputil.WriteError(w, r, apperrors.InvalidInput("unsupported provider: "+req.Provider), h.logger)
		return
	}

	sess, err := h.store.Create(req.Provider)
	if err != nil {
		if errors.Is(err, session.ErrCapacity) {
			err = apperrors.TooManyRequests("too many active sign-in sessions")
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: render(sess)})
}

// Get handles GET /api/v1/sessions/{id}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: render(sess)})
}

// Command handles POST /api/v1/sessions/{id}/commands. The response always
// carries the view after the command, including when it was rejected.
func (h *SessionHandler) Command(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var cmd flow.Command
	if err := validator.DecodeAndValidate(r, &cmd); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	// A dropped connection must not turn into a transport failure in the
	// flow: the action runs to completion and the next read shows it.
	ctx := logger.WithSessionID(context.WithoutCancel(r.Context()), sess.ID.String())
	ctx = relay.WithClientIP(ctx, middleware.ClientIP(r))
	logger.WithContext(ctx, h.logger).DebugContext(ctx, "handling command",
		slog.String("provider", sess.Flow.Provider()),
		slog.String("command", cmd.Name),
	)

	if err := sess.Flow.Handle(ctx, cmd); err != nil {
		httputil.WriteErrorWithData(w, r, commandError(cmd, err), render(sess), h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: render(sess)})
}

// Delete handles DELETE /api/v1/sessions/{id}.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	if err := h.store.Delete(id); err != nil {
		httputil.WriteError(w, r, notFound(id, err), h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return nil, false
	}
	sess, err := h.store.Get(id)
	if err != nil {
		httputil.WriteError(w, r, notFound(id, err), h.logger)
		return nil, false
	}
	return sess, true
}

func notFound(id uuid.UUID, err error) error {
	if errors.Is(err, session.ErrNotFound) {
		return apperrors.NotFound("session", id.String())
	}
	return err
}

// commandError maps the reason a command did not run to an API error.
// Failures reported by the provider are not errors here: they are part of
// the returned view.
func commandError(cmd flow.Command, err error) error {
	var verr *flow.ValidationError
	hasMessage := errors.As(err, &verr)

	switch {
	case errors.Is(err, flow.ErrInFlight):
		return apperrors.Conflict("ACTION_IN_FLIGHT", "a "+cmd.Name+" request is already in progress", err)
	case errors.Is(err, flow.ErrLocked):
		return apperrors.Conflict("CHALLENGE_LOCKED", "no more codes can be requested; start over to try again", err)
	case errors.Is(err, flow.ErrStale):
		return apperrors.Conflict("STALE_RESULT", "the sign-in moved on before the request completed", err)
	case errors.Is(err, flow.ErrWrongPhase):
		return apperrors.Conflict("WRONG_STEP", cmd.Name+" is not available at this step", err)
	case errors.Is(err, flow.ErrUnknownCommand):
		return apperrors.InvalidInput("unknown command: " + cmd.Name)
	case errors.Is(err, flow.ErrUnsupported):
		return apperrors.Unprocessable("UNSUPPORTED", cmd.Name+" is not supported by this provider", err)
	case errors.Is(err, luma.ErrSocialUnavailable) && hasMessage:
		return apperrors.Unprocessable("UNAVAILABLE", verr.Message, err)
	case errors.Is(err, flow.ErrNotReady):
		msg := "input is incomplete"
		if hasMessage {
			msg = verr.Message
		}
		return apperrors.Unprocessable("NOT_READY", msg, err)
	case hasMessage:
		return apperrors.Unprocessable("INVALID_COMMAND", verr.Message, err)
	default:
		return err
	}
}
