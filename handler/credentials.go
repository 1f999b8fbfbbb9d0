package handler

import (
	"hrsecurity/model"
	"hrsecurity/services"
)

// ReleaseExpiredCredentials clears the process token when the monitor
// expires the session it backed. The returned function unregisters the hook.
func ReleaseExpiredCredentials(e *Engine) func() {
	return e.Sessions.OnSessionTerminated(releaseExpiredCredential(e.Tokens))
}

// releaseExpiredCredential only clears the token the ended session owned; a
// token set by a later sign-in stays current.
func releaseExpiredCredential(tokens *services.JWTVerifier) func(services.Termination) {
	return func(t services.Termination) {
		if t.Reason != model.LogoutReasonExpired {
			return
		}
		tokens.ClearCurrentToken(t.Credential)
	}
}
