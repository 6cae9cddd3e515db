package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/safar-hail/service-maps/internal/domain/shared"
)

// Envelope is the uniform JSON body returned by every endpoint.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// ErrorBody carries a stable machine-readable code plus a human message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Meta carries pagination information for list responses.
type Meta struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
}

// Success writes a 200 response with the given data.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes a 201 response with the given data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// Paginated writes a 200 response with items and pagination meta.
func Paginated(c *gin.Context, items interface{}, total int64, page, limit int) {
	c.JSON(http.StatusOK, Envelope{
		Success: true,
		Data:    items,
		Meta:    &Meta{Total: total, Page: page, Limit: limit},
	})
}

// BadRequest writes a 400 response with the given message.
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Envelope{
		Success: false,
		Error:   &ErrorBody{Code: "bad_request", Message: message},
	})
}

// Error maps an application error to a status code and writes it. Errors
// that are not AppErrors become opaque 500s; the caller logs the detail.
func Error(c *gin.Context, err error) {
	appErr, ok := shared.AsAppError(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, Envelope{
			Success: false,
			Error:   &ErrorBody{Code: "internal_error", Message: "internal server error"},
		})
		return
	}

	c.JSON(statusFor(appErr.Kind), Envelope{
		Success: false,
		Error:   &ErrorBody{Code: appErr.Code, Message: appErr.Message},
	})
}

func statusFor(kind shared.ErrorKind) int {
	switch kind {
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindInvalidState, shared.KindConflict:
		return http.StatusConflict
	case shared.KindForbidden:
		return http.StatusForbidden
	case shared.KindUnprocessable:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
