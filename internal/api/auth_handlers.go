package api

import (
	"net"
	"net/http"
	"time"

	"github.com/example/ewaste-exchange/internal/api/middleware"
	"github.com/example/ewaste-exchange/internal/api/respond"
	"github.com/example/ewaste-exchange/internal/apperr"
	"github.com/example/ewaste-exchange/internal/auth"
	"github.com/example/ewaste-exchange/internal/command"
	"github.com/example/ewaste-exchange/internal/domain/account"
	"github.com/example/ewaste-exchange/internal/infrastructure/objectstore"
)

const (
	refreshTokenCookie = "refresh_token"
	sessionIDCookie    = "session_id"
	refreshCookiePath  = "/auth/refresh"
)

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"required,max=100"`
	Role     string `json:"role" validate:"omitempty,oneof=user recycler"`
	Phone    string `json:"phone" validate:"max=30"`
	City     string `json:"city" validate:"max=100"`
	Address  string `json:"address" validate:"max=300"`
	ShopName string `json:"shop_name" validate:"max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest is optional; browsers send the cookies instead.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	SessionID    string `json:"session_id"`
}

type ProfileRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=100"`
	Phone    *string `json:"phone" validate:"omitempty,max=30"`
	City     *string `json:"city" validate:"omitempty,max=100"`
	Address  *string `json:"address" validate:"omitempty,max=300"`
	ShopName *string `json:"shop_name" validate:"omitempty,max=100"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8,max=72"`
}

type AccountResponse struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	Name            string    `json:"name"`
	Role            string    `json:"role"`
	Phone           string    `json:"phone,omitempty"`
	City            string    `json:"city,omitempty"`
	Address         string    `json:"address,omitempty"`
	ShopName        string    `json:"shop_name,omitempty"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
	ShopImageURL    string    `json:"shop_image_url,omitempty"`
	IdentityDocURL  string    `json:"identity_doc_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func newAccountResponse(a *account.Account) AccountResponse {
	return AccountResponse{
		ID:              a.ID,
		Email:           a.Email,
		Name:            a.Name,
		Role:            string(a.Role),
		Phone:           a.Phone,
		City:            a.City,
		Address:         a.Address,
		ShopName:        a.ShopName,
		ProfileImageURL: a.ProfileImageURL,
		ShopImageURL:    a.ShopImageURL,
		IdentityDocURL:  a.IdentityDocURL,
		CreatedAt:       a.CreatedAt,
	}
}

type SessionResponse struct {
	Account   AccountResponse `json:"account"`
	SessionID string          `json:"session_id"`
	Tokens    *auth.TokenPair `json:"tokens"`
}

type UploadResponse struct {
	Account      AccountResponse `json:"account"`
	UploadErrors []string        `json:"upload_errors,omitempty"`
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	sess, err := h.cmd.Register(r.Context(), command.Register{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Role:     req.Role,
		Phone:    req.Phone,
		City:     req.City,
		Address:  req.Address,
		ShopName: req.ShopName,
	}, clientIP(r), r.UserAgent())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeSession(w, r, http.StatusCreated, sess)
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	sess, err := h.cmd.Login(r.Context(), command.Login{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeSession(w, r, http.StatusOK, sess)
}

// Refresh takes the refresh token and session from the body when given,
// otherwise from cookies.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	if req.RefreshToken == "" {
		req.RefreshToken = cookieValue(r, refreshTokenCookie)
	}
	if req.SessionID == "" {
		req.SessionID = cookieValue(r, sessionIDCookie)
	}
	if req.RefreshToken == "" || req.SessionID == "" {
		clearAuthCookies(w)
		h.fail(w, r, apperr.New(apperr.CodeUnauthorized, "refresh token and session are required"))
		return
	}

	sess, err := h.cmd.Refresh(r.Context(), command.Refresh{
		RefreshToken: req.RefreshToken,
		SessionID:    req.SessionID,
		IPAddress:    clientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		if apperr.IsCode(err, apperr.CodeUnauthorized) {
			clearAuthCookies(w)
		}
		h.fail(w, r, err)
		return
	}
	h.writeSession(w, r, http.StatusOK, sess)
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	if req.SessionID == "" {
		req.SessionID = cookieValue(r, sessionIDCookie)
	}
	err := h.cmd.Logout(r.Context(), command.Logout{
		AccountID: middleware.ActorID(r.Context()),
		SessionID: req.SessionID,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	clearAuthCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	acc, err := h.query.GetAccount(r.Context(), middleware.ActorID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, acc)
}

func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	acc, err := h.cmd.UpdateProfile(r.Context(), middleware.ActorID(r.Context()), account.ProfileUpdate{
		Name:     req.Name,
		Phone:    req.Phone,
		City:     req.City,
		Address:  req.Address,
		ShopName: req.ShopName,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, newAccountResponse(acc))
}

func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.cmd.ChangePassword(r.Context(), middleware.ActorID(r.Context()), req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadAccountImages takes a multipart form with any of profile_image,
// shop_image and identity_doc.
func (h *Handlers) UploadAccountImages(w http.ResponseWriter, r *http.Request) {
	if !isMultipart(r) {
		h.fail(w, r, apperr.New(apperr.CodeValidation, "multipart/form-data required"))
		return
	}
	if err := parseMultipart(r); err != nil {
		h.fail(w, r, err)
		return
	}

	cmd := command.UploadAccountImages{AccountID: middleware.ActorID(r.Context())}
	for field, dest := range map[string]**objectstore.File{
		"profile_image": &cmd.Profile,
		"shop_image":    &cmd.Shop,
		"identity_doc":  &cmd.IdentityDoc,
	} {
		f, err := formFile(r, field)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		*dest = f
	}

	result, err := h.cmd.UploadAccountImages(r.Context(), cmd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	respond.JSON(w, http.StatusOK, UploadResponse{
		Account:      newAccountResponse(result.Account),
		UploadErrors: result.UploadErrors,
	})
}

func (h *Handlers) writeSession(w http.ResponseWriter, r *http.Request, status int, sess *command.Session) {
	setAuthCookies(w, r, sess)
	respond.JSON(w, status, SessionResponse{
		Account:   newAccountResponse(sess.Account),
		SessionID: sess.SessionID,
		Tokens:    sess.Tokens,
	})
}

func setAuthCookies(w http.ResponseWriter, r *http.Request, sess *command.Session) {
	secure := r.TLS != nil
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AccessTokenCookie,
		Value:    sess.Tokens.AccessToken,
		Path:     "/",
		Expires:  sess.Tokens.AccessExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    sess.Tokens.RefreshToken,
		Path:     refreshCookiePath,
		Expires:  sess.Tokens.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     sessionIDCookie,
		Value:    sess.SessionID,
		Path:     "/",
		Expires:  sess.Tokens.RefreshExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func clearAuthCookies(w http.ResponseWriter) {
	for name, path := range map[string]string{
		middleware.AccessTokenCookie: "/",
		refreshTokenCookie:           refreshCookiePath,
		sessionIDCookie:              "/",
	} {
		http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: path, MaxAge: -1, HttpOnly: true})
	}
}

func cookieValue(r *http.Request, name string) string {
	if c, err := r.Cookie(name); err == nil {
		return c.Value
	}
	return ""
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
