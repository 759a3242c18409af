package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"task-manager/internal/cerr"
	"task-manager/internal/clog"
	"task-manager/internal/model"
	"task-manager/internal/service"
)

type userCtxKey struct{}

func userFromContext(ctx context.Context) *model.User {
	user, _ := ctx.Value(userCtxKey{}).(*model.User)
	return user
}

// authenticate resolves the bearer token and stores the user in the request
// context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, r, cerr.NewError(cerr.Unauthenticated, "missing bearer token", nil))
			return
		}
		user, err := s.authService.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, r, err)
			return
		}
		clog.AddAttribute(r.Context(), "user_id", user.ID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userCtxKey{}, user)))
	})
}

type userResponse struct {
	ID             uint      `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	TelegramChatID *int64    `json:"telegram_chat_id"`
	CreatedAt      time.Time `json:"created_at"`
}

func newUserResponse(user *model.User) userResponse {
	return userResponse{
		ID:             user.ID,
		Username:       user.Username,
		Email:          user.Email,
		TelegramChatID: user.TelegramChatID,
		CreatedAt:      user.CreatedAt,
	}
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, r, err)
		return
	}
	user, err := s.authService.Register(r.Context(), service.RegisterInput{
		Username: input.Username,
		Email:    input.Email,
		Password: input.Password,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newUserResponse(user))
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, r, err)
		return
	}
	token, user, err := s.authService.Login(r.Context(), input.Username, input.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": token,
		"user":  newUserResponse(user),
	})
}

func (s *Server) updateMe(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	var input struct {
		Email          string `json:"email"`
		TelegramChatID *int64 `json:"telegram_chat_id"`
	}
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.authService.UpdateContact(r.Context(), user, input.Email, input.TelegramChatID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}
