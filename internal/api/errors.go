package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/deltashare/deltashare/internal/catalog"
	"github.com/deltashare/deltashare/internal/delta"
	"github.com/deltashare/deltashare/internal/observability"
	"github.com/deltashare/deltashare/internal/pagination"
	"github.com/deltashare/deltashare/internal/sharing"
)

const (
	codeInvalidParameter = "INVALID_PARAMETER_VALUE"
	codeNotFound         = "RESOURCE_DOES_NOT_EXIST"
	codeAlreadyExists    = "RESOURCE_ALREADY_EXISTS"
	codeInternal         = "INTERNAL_ERROR"
	codeNotConfigured    = "NOT_CONFIGURED"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// validationMessage flattens validator errors into "field: tag" pairs.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, verr := range verrs {
		part := verr.Field() + ": " + verr.Tag()
		if verr.Param() != "" {
			part += "=" + verr.Param()
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, "; ")
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"errorCode": code,
		"message":   message,
		"trace_id":  observability.TraceIDFromContext(ctx),
	})
}

// writeFailure maps a domain error onto the response. Internal errors are
// logged and reported without details.
func writeFailure(deps Dependencies, w http.ResponseWriter, r *http.Request, action string, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, delta.ErrTableNotFound),
		errors.Is(err, delta.ErrVersionNotFound):
		writeError(r.Context(), w, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, pagination.ErrInvalidLimit),
		errors.Is(err, sharing.ErrInvalidTimestamp):
		writeError(r.Context(), w, http.StatusBadRequest, codeInvalidParameter, err.Error())
	case errors.Is(err, catalog.ErrAlreadyExists):
		writeError(r.Context(), w, http.StatusConflict, codeAlreadyExists, err.Error())
	default:
		if deps.Logger != nil {
			deps.Logger.ErrorContext(r.Context(), action+" failed",
				slog.Any("error", err),
			)
		}
		writeError(r.Context(), w, http.StatusInternalServerError, codeInternal, action+" failed")
	}
}
