package auth

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"geminichat-backend/internal/clock"
	"geminichat-backend/internal/logger"
	"geminichat-backend/internal/models"
	"geminichat-backend/internal/store"
	"geminichat-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

// sessionTTL bounds how long a sent code stays usable.
const sessionTTL = 10 * time.Minute

// Options configures the OTP gate.
type Options struct {
	OTPCode    string
	SendDelay  time.Duration
	BcryptCost int
}

type otpSession struct {
	countryCode string
	readyAt     time.Time
	expiresAt   time.Time
}

// AuthHandler handles the phone + OTP sign-in flow.
type AuthHandler struct {
	persistence *store.Persistence
	clock       clock.Clock
	otpHash     string
	otpHint     string
	sendDelay   time.Duration

	mu       sync.Mutex
	sessions map[string]otpSession
}

// NewAuthHandler hashes the accepted code once at startup.
func NewAuthHandler(persistence *store.Persistence, clk clock.Clock, opts Options) (*AuthHandler, error) {
	if clk == nil {
		clk = clock.Real{}
	}
	hash, err := utils.HashSecret(opts.OTPCode, opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash OTP code: %w", err)
	}
	return &AuthHandler{
		persistence: persistence,
		clock:       clk,
		otpHash:     hash,
		otpHint:     fmt.Sprintf("Please check your phone for the 6-digit code (use %s)", opts.OTPCode),
		sendDelay:   opts.SendDelay,
		sessions:    make(map[string]otpSession),
	}, nil
}

func (h *AuthHandler) SendOTP(c *gin.Context) {
	var req models.SendOTPRequest
	log := logger.Ctx(c.Request.Context())

	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debug().Err(err).Msg("SendOTP: bad request data")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	countryCode := req.DialCode
	if countryCode == "" {
		countryCode = req.Country
	}

	now := h.clock.Now()
	h.mu.Lock()
	h.pruneLocked(now)
	h.sessions[req.Phone] = otpSession{
		countryCode: countryCode,
		readyAt:     now.Add(h.sendDelay),
		expiresAt:   now.Add(h.sendDelay + sessionTTL),
	}
	h.mu.Unlock()

	log.Info().Str("country", req.Country).Msg("SendOTP: code dispatched")
	c.JSON(http.StatusOK, gin.H{
		"message":   fmt.Sprintf("OTP will be sent to %s %s", countryCode, req.Phone),
		"hint":      h.otpHint,
		"readyInMs": h.sendDelay.Milliseconds(),
	})
}

func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req models.VerifyOTPRequest
	ctx := c.Request.Context()
	log := logger.Ctx(ctx)

	if err := c.ShouldBindJSON(&req); err != nil {
		log.Debug().Err(err).Msg("VerifyOTP: bad request data")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data", "details": err.Error()})
		return
	}

	now := h.clock.Now()
	h.mu.Lock()
	h.pruneLocked(now)
	session, ok := h.sessions[req.Phone]
	h.mu.Unlock()

	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No OTP was requested for this phone number"})
		return
	}
	if now.Before(session.readyAt) {
		c.JSON(http.StatusConflict, gin.H{"error": "OTP is still being sent"})
		return
	}
	if !utils.CheckSecretHash(req.OTP, h.otpHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid OTP"})
		return
	}

	if err := h.persistence.SaveAuthData(ctx, req.Phone, session.countryCode); err != nil {
		log.Error().Err(err).Msg("VerifyOTP: failed to persist auth record")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to complete sign-in"})
		return
	}

	h.mu.Lock()
	delete(h.sessions, req.Phone)
	h.mu.Unlock()

	token, err := utils.GenerateJWT(req.Phone, session.countryCode)
	if err != nil {
		log.Error().Err(err).Msg("VerifyOTP: failed to generate JWT")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Authentication successful, but failed to generate token"})
		return
	}

	record, err := h.persistence.GetAuthData(ctx)
	if err != nil || record == nil {
		record = &models.AuthRecord{Phone: req.Phone, CountryCode: session.countryCode, IsAuthenticated: true, Timestamp: now.UnixMilli()}
	}

	log.Info().Msg("VerifyOTP: authentication successful")
	c.JSON(http.StatusOK, gin.H{
		"message": "Authentication successful",
		"token":   token,
		"auth":    record,
	})
}

func (h *AuthHandler) GetMe(c *gin.Context) {
	record, err := h.persistence.GetAuthData(c.Request.Context())
	if err != nil {
		lg := logger.Ctx(c.Request.Context())
		lg.Error().Err(err).Msg("GetMe: failed to read auth record")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve auth information"})
		return
	}
	if record == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not signed in"})
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.persistence.ClearAuthData(c.Request.Context()); err != nil {
		lg := logger.Ctx(c.Request.Context())
		lg.Error().Err(err).Msg("Logout: failed to clear auth record")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to log out"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// RootRedirect sends signed-in visitors to the chat and everyone else to
// sign-up.
func (h *AuthHandler) RootRedirect(c *gin.Context) {
	if h.persistence.IsAuthenticated(c.Request.Context()) {
		c.Redirect(http.StatusFound, "/chat")
		return
	}
	c.Redirect(http.StatusFound, "/signup")
}

// pruneLocked must be called with h.mu held.
func (h *AuthHandler) pruneLocked(now time.Time) {
	for phone, s := range h.sessions {
		if !now.Before(s.expiresAt) {
			delete(h.sessions, phone)
		}
	}
}
