package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"posbridge/internal/service"
)

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// AdminLoginHandler issues the bearer token the admin console uses.
func AdminLoginHandler(admins AdminStore, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		if req.Login == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "login and password required")
			return
		}

		user, err := admins.Authenticate(r.Context(), req.Login, req.Password)
		if err != nil {
			if errors.Is(err, service.ErrInvalidCredentials) {
				writeError(w, http.StatusUnauthorized, "invalid login or password")
				return
			}
			writeInternalError(w, err)
			return
		}

		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":  user.Login,
			"role": "admin",
			"exp":  jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		})

		tokenString, err := token.SignedString([]byte(secret))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "token generation failed")
			return
		}

		w.Header().Set("Authorization", "Bearer "+tokenString)
		writeJSON(w, http.StatusOK, map[string]string{"token": tokenString})
	}
}
