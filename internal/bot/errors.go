package bot

import "errors"

// ErrNotConfigured means no connection profile exists for the session.
// Every flow that talks to the tracker checks this before doing
// anything else; it is distinct from a rejected credential.
var ErrNotConfigured = errors.New("no profile configured for session")
