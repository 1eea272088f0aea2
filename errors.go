package githubconnect

import (
	"errors"

	"github.com/gitfolio/github-connect/providers"
)

// Dashboard error tags. Callback failures redirect the user back to the
// dashboard with one of these as the ?error= query value so the UI can
// render a stage-specific message instead of a generic failure.
const (
	// ErrorTagOAuth covers problems with the provider round trip itself:
	// the provider reported an error, the anti-forgery state did not match,
	// or the authorization code was missing.
	ErrorTagOAuth = "github_oauth"

	// ErrorTagToken covers failures after a valid callback: the code
	// exchange, token encryption, or connection persistence failed.
	ErrorTagToken = "github_token"

	// ErrorTagUser covers identity lookup failures: the provider rejected
	// the freshly issued token or returned an unusable identity.
	ErrorTagUser = "github_user"
)

// TagForError classifies a CompleteConnect failure into its dashboard tag.
// State and code problems never reach CompleteConnect, so the default here
// is the token stage.
func TagForError(err error) string {
	if errors.Is(err, providers.ErrIdentityLookup) {
		return ErrorTagUser
	}
	return ErrorTagToken
}
