package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/qs3c/mpesa_anal_server/config"
	"github.com/qs3c/mpesa_anal_server/internal/model/dto"
	"github.com/qs3c/mpesa_anal_server/internal/pkg/jwt"
	"github.com/qs3c/mpesa_anal_server/internal/pkg/response"
)

type SessionHandler struct {
	cfg config.JWTConfig
}

func NewSessionHandler(cfg config.JWTConfig) *SessionHandler {
	return &SessionHandler{cfg: cfg}
}

// Create 签发新的会话令牌
// POST /api/v1/session
func (h *SessionHandler) Create(c *gin.Context) {
	sessionID := jwt.NewSessionID()
	token, err := jwt.GenerateToken(sessionID, h.cfg.Secret, h.cfg.ExpireHours)
	if err != nil {
		log.Error().Err(err).Msg("generate session token failed")
		response.ServerError(c, "")
		return
	}

	response.Success(c, dto.SessionResponse{
		SessionID: sessionID,
		Token:     token,
		ExpiresIn: h.cfg.ExpireHours * 3600,
	})
}
