package handler

import (
	"errors"
	"net/http"

	"github.com/dukerupert/recipebox/internal/backend"
	"github.com/dukerupert/recipebox/internal/recipe"
)

const msgSignInToCreate = "You must be signed in to create a recipe"

// statusFor maps an operation error onto the response status. The
// message shown to the user is always err.Error().
func statusFor(err error) int {
	var (
		ve *recipe.ValidationError
		ae *backend.AuthError
		ne *backend.NetworkError
		re *backend.RemoteError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, backend.ErrNoAuthToken), errors.As(err, &ae):
		return http.StatusUnauthorized
	case errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &ne):
		if ne.Timeout() {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case errors.As(err, &re):
		if re.Status >= 400 && re.Status < 500 {
			return re.Status
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// createFailure is the upload form's message for a failed create.
func createFailure(err error) string {
	if errors.Is(err, backend.ErrNoAuthToken) {
		return msgSignInToCreate
	}
	return err.Error()
}
