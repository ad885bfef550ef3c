package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jonesrussell/north-cloud/regwatch/internal/domain"
)

func TestStatusFor(t *testing.T) {
	t.Parallel()

	verr := &domain.ValidationError{}
	verr.Add("cron_expression", "bad")

	tests := []struct {
		err  error
		want int
	}{
		{verr, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", verr), http.StatusBadRequest},
		{domain.NotFoundf("task %s", "x"), http.StatusNotFound},
		{fmt.Errorf("task x: %w", domain.ErrConcurrencyConflict), http.StatusConflict},
		{domain.ErrAlreadyFinished, http.StatusConflict},
		{domain.ErrInvalidTransition, http.StatusConflict},
		{domain.ErrCrawlerDisabled, http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
