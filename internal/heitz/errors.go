package heitz

import "fmt"

// AuthError means the site rejected credentials. Not transient; requires a
// credential fix, never a retry.
type AuthError struct {
	Login  string
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("heitz: authentication failed for %s: %s", e.Login, e.Reason)
}

type FetchKind string

const (
	FetchTimeout    FetchKind = "timeout"
	FetchNavigation FetchKind = "navigation"
)

// FetchError is a transient transport failure: the site did not answer in
// time or answered with something other than the requested page.
type FetchError struct {
	Kind FetchKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("heitz: %s fetching %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError means the page loaded but the expected structural markers are
// gone. Distinct from an empty schedule, which is a valid result. Likely the
// site contract changed and an operator should look.
type ParseError struct {
	URL     string
	Missing string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("heitz: parsing %s: expected marker %q not found", e.URL, e.Missing)
}
