package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"shorty.local/internal/platform/auth"
)

type loginRequest struct {
	Password string `json:"password"`
}

// NewLoginHandler 处理 POST /api/v1/login：管理口令换 JWT。
// 没有多用户体系，管理面只有一个 bcrypt 口令（hash 从环境注入，
// 用 cmd/tools/hashpass 生成）；hash 为空时整个管理登录关闭。
func NewLoginHandler(passwordHash string, ts auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if passwordHash == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "admin login disabled"})
			return
		}

		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.Password)); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "wrong password"})
			return
		}

		token, err := ts.Sign("admin", "admin")
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token sign failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token})
	}
}
