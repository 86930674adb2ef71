package httpapi

import (
	"net/http"
	"strings"

	"github.com/maxmusicschool/schoolauth"
)

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var req schoolauth.LoginRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		a.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		a.fail(w, r, badRequest("email and password are required"))
		return
	}

	res, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (a *api) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		a.fail(w, r, err)
		return
	}
	if req.RefreshToken == "" {
		a.fail(w, r, badRequest("refreshToken is required"))
		return
	}

	pair, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

type logoutRequest struct {
	UserID string `json:"userId"`
}

func (a *api) logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		a.fail(w, r, err)
		return
	}
	id, _ := schoolauth.IdentityFromContext(r.Context())
	if err := a.auth.Logout(r.Context(), id, req.UserID); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (a *api) me(w http.ResponseWriter, r *http.Request) {
	id, _ := schoolauth.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, id)
}

// caller returns the user id the auth gate attached.
func caller(r *http.Request) string {
	id, _ := schoolauth.IdentityFromContext(r.Context())
	return id.UserID
}
