// internal/server/handlers_auth.go
package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"adreel/internal/auth"
	"adreel/internal/common/errors"
	"adreel/internal/models"
)

func (s *Server) setSessionCookie(w http.ResponseWriter, session *models.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// decodeCredentials reads a signup/login body. JSON and form-encoded bodies
// are both accepted.
func decodeCredentials(r *http.Request) (username, password string, err error) {
	body := map[string]interface{}{}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", "", errors.NewValidationFailedError("malformed JSON body")
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return "", "", errors.NewValidationFailedError("malformed form body")
		}
		if v := r.PostFormValue("username"); v != "" {
			body["username"] = v
		}
		if v := r.PostFormValue("password"); v != "" {
			body["password"] = v
		}
	}

	if err := auth.ValidateCredentials(body); err != nil {
		return "", "", err
	}
	username, _ = body["username"].(string)
	password, _ = body["password"].(string)
	return username, password, nil
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	username, password, err := decodeCredentials(r)
	if err != nil {
		writeError(w, r, s.logger, "signup", err)
		return
	}

	user, session, err := s.auth.Signup(r.Context(), username, password)
	if err != nil {
		writeError(w, r, s.logger, "signup", err)
		return
	}

	s.setSessionCookie(w, session)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"user":    user,
		"token":   session.Token,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	username, password, err := decodeCredentials(r)
	if err != nil {
		writeError(w, r, s.logger, "login", err)
		return
	}

	user, session, err := s.auth.Login(r.Context(), username, password)
	if err != nil {
		writeError(w, r, s.logger, "login", err)
		return
	}

	s.setSessionCookie(w, session)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    user,
		"token":   session.Token,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), sessionToken(r)); err != nil {
		writeError(w, r, s.logger, "logout", err)
		return
	}

	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// handleMe reports the authentication state. A request without a valid
// session gets a 200 with authenticated=false rather than an error.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.auth.CurrentUser(r.Context(), sessionToken(r))
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"authenticated": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"authenticated": true,
		"username":      user.Username,
		"user":          user,
	})
}
