package httpapi

import (
	"context"
	"errors"
	"net/http"

	"meritlog.org/internal/auth"
	"meritlog.org/internal/session"
)

// signIn establishes the session from the bearer token and waits for the sign-in
// pipeline to finish before answering.
func (a *API) signIn(w http.ResponseWriter, r *http.Request) {
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}
	ev, err := a.svc.Provider.SignIn(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}
		handleStoreError(w, r, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.signInWait)
	defer cancel()
	st, err := a.svc.Sessions.Await(ctx, func(s session.State) bool {
		return s.SignedIn && s.UserID == ev.UserID && !s.Loading
	})
	if err != nil {
		// The pipeline keeps running; the caller can poll GET /v1/session.
		writeJSON(w, http.StatusAccepted, st)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// getSession reports the session state to its owner. Other identities see a
// signed-out state.
func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	st := a.svc.Sessions.State()
	if st.SignedIn && st.UserID != uid {
		st = session.State{Resolving: st.Resolving}
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) signOut(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Sessions.SignOut(r.Context()); err != nil {
		handleStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
