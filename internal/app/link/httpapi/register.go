package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"

	"shorty.local/internal/platform/auth"
	"shorty.local/internal/platform/httpmiddleware"
	"shorty.local/internal/platform/ratelimit"
)

// RegisterPublicRoutes 挂载公开路由。
//
// 跳转入口刻意不放在 /api/v1 下：短链的使用体验是直接在浏览器输入
// /{id}，api 前缀会把短链变长、失去意义。
// gin 的路由树不允许根级 /:id 和 /healthz 这类静态路由共存，
// 所以跳转挂在 NoRoute 上：静态路由优先，剩下的都当候选短码。
func RegisterPublicRoutes(r *gin.Engine, store LinkStore, pub PublicConfig, limiter *ratelimit.Limiter) {
	r.GET("/config", NewConfigHandler(pub))
	// 跳转 100次/分钟
	r.NoRoute(httpmiddleware.RateLimit(limiter, "redirect", 100, time.Minute), NewRedirectHandler(store))
}

// RegisterAPIRoutes 在给定分组（例如 /api/v1）下挂载短链 API。
//
// 约定：本包只做传输层工作，领域逻辑在 internal/app/link，
// SQL 在 internal/app/link/repo。
func RegisterAPIRoutes(api *gin.RouterGroup, store LinkStore, pub PublicConfig, passwordHash string, ts auth.TokenService, limiter *ratelimit.Limiter) {
	// 创建短链 10次/分钟
	api.POST("/links", httpmiddleware.RateLimit(limiter, "create", 10, time.Minute), NewCreateHandler(store, pub.PublicURL))
	api.GET("/links/:id", NewFindLinkHandler(store))
	// 登录 5次/分钟
	api.POST("/login", httpmiddleware.RateLimit(limiter, "login", 5, time.Minute), NewLoginHandler(passwordHash, ts))

	// 需要管理员的路由
	admin := api.Group("/admin")
	admin.Use(httpmiddleware.AuthRequired(ts), httpmiddleware.RequireRole("admin"))
	admin.POST("/clean", NewCleanHandler(store))
}
