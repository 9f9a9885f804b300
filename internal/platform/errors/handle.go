package errors

import (
	stderrors "errors"
	"net/http"

	"github.com/louisbranch/outlast/internal/platform/errors/i18n"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultLocale is the default locale for error messages.
const DefaultLocale = i18n.BaseLocale

// HandleError converts domain errors to gRPC status for client responses.
// The user-facing message is formatted with the catalog for locale.
func HandleError(err error, locale string) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if stderrors.As(err, &appErr) {
		catalog := i18n.GetCatalog(locale)
		return appErr.ToGRPCStatus(catalog.Locale(), catalog.Format(string(appErr.Code), appErr.Metadata))
	}
	return status.Error(codes.Internal, "an unexpected error occurred")
}

// Problem is the JSON error body returned by the HTTP API.
type Problem struct {
	Code     Code              `json:"code"`
	Category Category          `json:"category,omitempty"`
	Message  string            `json:"message"`
	Locale   string            `json:"locale"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ToProblem converts err to an HTTP status and a localized body.
func ToProblem(err error, locale string) (int, Problem) {
	catalog := i18n.GetCatalog(locale)
	var appErr *Error
	if !stderrors.As(err, &appErr) {
		return http.StatusInternalServerError, Problem{
			Code:    CodeUnknown,
			Message: "an unexpected error occurred",
			Locale:  catalog.Locale(),
		}
	}
	return appErr.Code.HTTPStatus(), Problem{
		Code:     appErr.Code,
		Category: appErr.Code.Category(),
		Message:  catalog.Format(string(appErr.Code), appErr.Metadata),
		Locale:   catalog.Locale(),
		Metadata: appErr.Metadata,
	}
}
