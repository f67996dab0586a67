package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

// Sentinels shared by services and repositories. Wrap with
// fmt.Errorf("%w: detail", errX) so handlers can map them with errors.Is.
var (
	// errNotFound indicates the requested record does not exist for this user.
	errNotFound = errors.New("not found")

	// errInvalid indicates caller input failed validation.
	errInvalid = errors.New("invalid input")

	// errEstimate indicates the AI estimator failed or returned an unusable payload.
	errEstimate = errors.New("estimation failed")

	// errUnauthorized indicates missing or invalid credentials.
	errUnauthorized = errors.New("unauthorized")

	// errUnrecognized indicates the AI estimator could not identify the input as food.
	errUnrecognized = errors.New("unrecognized")
)

// apiError returns a consistent JSON error response: {"error": "message"}.
func apiError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// statusFor maps a service error to an HTTP status. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errInvalid):
		return http.StatusBadRequest
	case errors.Is(err, errNotFound), errors.Is(err, pgx.ErrNoRows):
		return http.StatusNotFound
	case errors.Is(err, errUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errEstimate):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err using statusFor. Validation and not-found messages
// are echoed to the client; anything else gets the generic fallback message.
func respondError(c *gin.Context, err error, fallback string) {
	status := statusFor(err)
	if status == http.StatusBadRequest || status == http.StatusNotFound {
		apiError(c, status, err.Error())
		return
	}
	apiError(c, status, fallback)
}
