package githubgw

import (
	"errors"
	"net/http"
	"testing"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
)

func errResponse(status int) error {
	return &github.ErrorResponse{Response: &http.Response{StatusCode: status}}
}

func TestIsPermanentClassifiesStatusCodes(t *testing.T) {
	assert.False(t, isPermanent(errResponse(http.StatusTooManyRequests)))
	assert.False(t, isPermanent(errResponse(http.StatusServiceUnavailable)))
	assert.True(t, isPermanent(errResponse(http.StatusNotFound)))
	assert.True(t, isPermanent(errResponse(http.StatusUnprocessableEntity)))
	assert.True(t, isPermanent(errors.New("some other error")))
}

func TestIsPermanentTreatsRateLimitErrorAsTransient(t *testing.T) {
	assert.False(t, isPermanent(&github.RateLimitError{}))
	assert.False(t, isPermanent(&github.AbuseRateLimitError{}))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(errResponse(http.StatusNotFound)))
	assert.False(t, isNotFound(errResponse(http.StatusInternalServerError)))
	assert.False(t, isNotFound(errors.New("boom")))
}

func TestDefaultRetryConfig(t *testing.T) {
	c := DefaultRetryConfig()
	assert.Equal(t, 5, c.MaxAttempts)
	assert.Equal(t, 2.0, c.BackoffFactor)
}

func TestMaxAttemptsFallsBackToDefault(t *testing.T) {
	assert.Equal(t, DefaultRetryConfig().MaxAttempts, maxAttempts(0))
	assert.Equal(t, 3, maxAttempts(3))
}
