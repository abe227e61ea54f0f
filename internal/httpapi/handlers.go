package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
)

const maxBodyBytes = 64 << 10

type handler struct {
	engine     *authcore.Engine
	trustProxy bool
}

type outcomeResponse struct {
	Message string `json:"message"`
	Next    string `json:"next,omitempty"`
}

type registerResponse struct {
	outcomeResponse
	UserID string `json:"userId"`
}

type loginResponse struct {
	outcomeResponse
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type sessionResponse struct {
	UserID        string    `json:"userId"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"emailVerified"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyEmailRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type resetPasswordRequest struct {
	Token              string `json:"token"`
	NewPassword        string `json:"newPassword"`
	ConfirmNewPassword string `json:"confirmNewPassword"`
}

var errBadBody = errors.New("malformed request body")

// ctx returns the request context carrying the client IP for rate limiting.
func (h *handler) ctx(r *http.Request) context.Context {
	return authcore.WithClientIP(r.Context(), ClientIP(r, h.trustProxy))
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		WriteJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_request", Message: errBadBody.Error()})
		return false
	}
	return true
}

func outcome(o authcore.Outcome) outcomeResponse {
	return outcomeResponse{Message: o.Message, Next: string(o.Next)}
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.engine.Register(h.ctx(r), authcore.RegisterRequest(req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, registerResponse{outcomeResponse: outcome(res.Outcome), UserID: res.UserID})
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.engine.Login(h.ctx(r), authcore.LoginRequest(req), middleware.ResponseSink(w))
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, loginResponse{
		outcomeResponse: outcome(res.Outcome),
		UserID:          res.UserID,
		ExpiresAt:       res.ExpiresAt,
	})
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Logout(h.ctx(r), middleware.SessionCookie(h.engine, r), middleware.ResponseSink(w)); err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, outcomeResponse{Message: "Logged out"})
}

func (h *handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.engine.VerifyEmail(h.ctx(r), authcore.VerifyEmailRequest(req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, outcome(*res))
}

func (h *handler) resendOTP(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.engine.ResendOTP(h.ctx(r), req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, outcome(*res))
}

func (h *handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.engine.ForgotPassword(h.ctx(r), req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, outcome(*res))
}

func (h *handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.engine.ResetPassword(h.ctx(r), authcore.ResetPasswordRequest(req))
	if err != nil {
		writeError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, outcome(*res))
}

func (h *handler) session(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, authcore.ErrSessionNotFound)
		return
	}
	WriteJSON(w, http.StatusOK, sessionResponse{
		UserID:        res.User.ID,
		Username:      res.User.Username,
		Email:         res.User.Email,
		EmailVerified: res.User.EmailVerified,
		ExpiresAt:     res.Session.ExpiresAt,
	})
}
