package handlers

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/auth/mfa"
	"github.com/quackback/quackback/internal/models"
	"github.com/quackback/quackback/pkg/errors"
	"github.com/quackback/quackback/pkg/response"
)

// MFAHandler manages TOTP enrollment for authenticated team members.
type MFAHandler struct {
	db   *gorm.DB
	totp *mfa.TOTPService
}

func NewMFAHandler(db *gorm.DB, totp *mfa.TOTPService) *MFAHandler {
	return &MFAHandler{db: db, totp: totp}
}

// GET /api/auth/mfa
func (h *MFAHandler) Status(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	enabled, err := h.totp.Enabled(uid)
	if err != nil {
		response.Error(c, errors.ErrInternalServer)
		return
	}

	payload := gin.H{"enabled": enabled}
	if enabled {
		if remaining, err := h.totp.RemainingBackupCodes(uid); err == nil {
			payload["backup_codes_remaining"] = remaining
		}
	}
	response.Success(c, http.StatusOK, payload)
}

// POST /api/auth/mfa/setup
func (h *MFAHandler) Setup(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var user models.User
	if err := h.db.WithContext(requestContext(c)).First(&user, "id = ?", uid).Error; err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	key, backupCodes, err := h.totp.GenerateSecret(user.ID, user.Email)
	if err != nil {
		response.Error(c, errors.ErrInternalServer)
		return
	}

	png, err := h.totp.GenerateQRCode(key)
	if err != nil {
		response.Error(c, errors.ErrInternalServer)
		return
	}

	// Secret and backup codes are shown exactly once, at enrollment.
	response.Success(c, http.StatusOK, gin.H{
		"secret":       key.Secret(),
		"otpauth_url":  key.String(),
		"qr_code_png":  base64.StdEncoding.EncodeToString(png),
		"backup_codes": backupCodes,
	})
}

type mfaVerifyRequest struct {
	Code string `json:"code" validate:"required"`
}

// POST /api/auth/mfa/verify
func (h *MFAHandler) Verify(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var req mfaVerifyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ok, err := h.totp.VerifyCode(uid, strings.TrimSpace(req.Code))
	if err != nil || !ok {
		response.Error(c, errors.ErrMFAInvalid)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"verified": true})
}

// DELETE /api/auth/mfa
func (h *MFAHandler) Disable(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.totp.Disable(uid); err != nil {
		response.Error(c, errors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"disabled": true})
}
