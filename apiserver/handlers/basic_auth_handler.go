package handlers

import (
	"net/http"

	"github.com/goji/httpauth"
)

const authRealm = "zkrecipes"

// BasicAuthWrap guards every route with one set of credentials. Requests
// without them get a bare 401 and never reach the recipes.
func BasicAuthWrap(handler http.Handler, username, password string) http.Handler {
	return httpauth.BasicAuth(httpauth.AuthOptions{
		Realm:               authRealm,
		User:                username,
		Password:            password,
		UnauthorizedHandler: http.HandlerFunc(unauthorized),
	})(handler)
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"status":"error","message":"unauthorized"}`))
}
