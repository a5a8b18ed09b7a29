package wsfront

import "net/http"

// GlassesAuthenticator resolves the authenticated userId for an inbound
// /glasses-ws upgrade request. A production deployment swaps in whatever
// identity provider sits in front of the core; the default below trusts a
// single request value and exists so the front door has something to run
// against out of the box.
type GlassesAuthenticator interface {
	Authenticate(r *http.Request) (userID string, ok bool)
}

// QueryParamAuthenticator resolves userID from a URL query parameter
// (default "userId"). It performs no verification of its own — it is meant
// to sit behind a reverse proxy or API gateway that has already
// authenticated the request and forwarded the verified identity.
type QueryParamAuthenticator struct {
	ParamName string
}

// NewQueryParamAuthenticator returns a QueryParamAuthenticator reading
// paramName, defaulting to "userId" if empty.
func NewQueryParamAuthenticator(paramName string) *QueryParamAuthenticator {
	if paramName == "" {
		paramName = "userId"
	}
	return &QueryParamAuthenticator{ParamName: paramName}
}

// Authenticate implements GlassesAuthenticator.
func (a *QueryParamAuthenticator) Authenticate(r *http.Request) (string, bool) {
	userID := r.URL.Query().Get(a.ParamName)
	if userID == "" {
		return "", false
	}
	return userID, true
}
