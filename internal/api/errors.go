// Package api implements the regwatch HTTP API.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
)

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error  string              `json:"error"`
	Fields []domain.FieldError `json:"fields,omitempty"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConcurrencyConflict),
		errors.Is(err, domain.ErrAlreadyFinished),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrCrawlerDisabled):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondErr writes err with its mapped status. Internal errors are attached
// to the context for the request log and hidden from the client.
func respondErr(c *gin.Context, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		resp.Error = "internal server error"
	}
	c.AbortWithStatusJSON(status, resp)
}

// respondBadRequest sends a 400 with message.
func respondBadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: message})
}

// pageRequest reads page and size query params; Normalize applies the defaults.
func pageRequest(c *gin.Context) domain.PageRequest {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("size"))
	return domain.PageRequest{Page: page, Size: size}.Normalize()
}

// operator identifies who made a change, defaulting to "api".
func operator(c *gin.Context, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	if h := c.GetHeader("X-Operator"); h != "" {
		return h
	}
	return "api"
}
