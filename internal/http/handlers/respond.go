package handlers

import (
	"errors"
	"net/http"

	"github.com/geocoder89/kidshub/internal/http/middlewares"
	"github.com/geocoder89/kidshub/internal/store"
	"github.com/gin-gonic/gin"
)

// apiError is the body of every failed /auth/v1 and /rest/v1 response:
// {"error": {"code": ..., "message": ..., "requestId": ..., "details": ...}}.
// Clients switch on code; message is for people.
type apiError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
	Details   any    `json:"details,omitempty"`
}

func RespondError(ctx *gin.Context, status int, code, message string, details any) {
	ctx.JSON(status, gin.H{
		"error": apiError{
			Code:      code,
			Message:   message,
			RequestID: middlewares.RequestIDFromContext(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details any) {
	RespondError(ctx, http.StatusBadRequest, store.CodeInvalidRequest, message, details)
}

func RespondUnauthorized(ctx *gin.Context, code, message string) {
	RespondError(ctx, http.StatusUnauthorized, code, message, nil)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, store.CodeNotFound, message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

// RespondStoreError answers with the status and code of a store.Error, which
// carries business outcomes such as activity_full or forbidden, and hides
// anything else behind a 500.
func RespondStoreError(ctx *gin.Context, err error) {
	var se *store.Error
	if errors.As(err, &se) {
		RespondError(ctx, se.Status, se.Code, se.Message, nil)
		return
	}

	_ = ctx.Error(err)
	RespondInternal(ctx, "Something went wrong")
}
