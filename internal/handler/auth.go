package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/recipebox/internal/auth"
)

const msgCheckEmail = "Check your email to confirm your account, then sign in."

type AuthHandler struct {
	gateway  *auth.Gateway
	provider *auth.Provider
	rd       *Renderer
	logger   *slog.Logger
}

func NewAuthHandler(gw *auth.Gateway, p *auth.Provider, rd *Renderer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{gateway: gw, provider: p, rd: rd, logger: logger}
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	data := pageData(r, "Sign in")
	data["Email"] = ""
	h.rd.render(w, http.StatusOK, "login", data)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")

	data := pageData(r, "Sign in")
	data["Email"] = email
	if email == "" || password == "" {
		data["Error"] = "Email and password are required"
		h.rd.render(w, http.StatusBadRequest, "login", data)
		return
	}

	if _, err := h.gateway.SignIn(r.Context(), email, password); err != nil {
		h.logger.Info("sign in failed", "email", email, "error", err)
		data["Error"] = err.Error()
		h.rd.render(w, statusFor(err), "login", data)
		return
	}
	redirect(w, r, "/dashboard")
}

func (h *AuthHandler) SignupPage(w http.ResponseWriter, r *http.Request) {
	data := pageData(r, "Create account")
	data["Email"], data["Username"], data["FullName"] = "", "", ""
	h.rd.render(w, http.StatusOK, "signup", data)
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	username := strings.TrimSpace(r.FormValue("username"))
	fullName := strings.TrimSpace(r.FormValue("full_name"))

	data := pageData(r, "Create account")
	data["Email"] = email
	data["Username"] = username
	data["FullName"] = fullName
	if email == "" || password == "" {
		data["Error"] = "Email and password are required"
		h.rd.render(w, http.StatusBadRequest, "signup", data)
		return
	}

	if _, err := h.gateway.SignUp(r.Context(), email, password, username, fullName); err != nil {
		h.logger.Info("sign up failed", "email", email, "error", err)
		data["Error"] = err.Error()
		h.rd.render(w, statusFor(err), "signup", data)
		return
	}

	if h.provider.State().Authenticated() {
		redirect(w, r, "/dashboard")
		return
	}

	// Unconfirmed accounts get no session until the email link is followed.
	data["Notice"] = msgCheckEmail
	h.rd.render(w, http.StatusOK, "signup", data)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.provider.SignOut(r.Context()); err != nil {
		h.logger.Error("sign out", "error", err)
	}
	redirect(w, r, "/")
}
