package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"shorty.local/internal/app/link"
	"shorty.local/internal/platform/metrics"
)

// LinkStore 是 handler 依赖的核心接口（由 repo.LinkStore 实现）。
//
// 设计原因：
// - handler 只做"翻译"：HTTP <-> 领域（参数校验、错误映射、响应格式）
// - 依赖接口而不是具体仓储，httptest 单测不用连数据库
type LinkStore interface {
	Create(ctx context.Context, url string) (link.Link, error)
	CreateWithConfig(ctx context.Context, cfg link.LinkConfig) (link.Link, error)
	Get(ctx context.Context, id string) (*link.Link, error)
	FindByID(ctx context.Context, id string) (*link.Link, error)
	Clean(ctx context.Context) (int64, error)
}

type CreateResponse struct {
	ID         string `json:"id"`
	ShortURL   string `json:"short_url"`
	RedirectTo string `json:"redirect_to"`
}

// createStatus 把领域错误映射成状态码。
// 校验类 400，冲突 409，其余当存储故障 500。
func createStatus(err error) int {
	switch {
	case errors.Is(err, link.ErrLinkEmpty),
		errors.Is(err, link.ErrLinkTooLong),
		errors.Is(err, link.ErrCustomIDTooLong),
		errors.Is(err, link.ErrExpiredLinkProvided):
		return http.StatusBadRequest
	case errors.Is(err, link.ErrLinkConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// NewCreateHandler 处理 POST /api/v1/links：JSON 配置创建短链。
// body 即 LinkConfig：link 必填，custom_id（别名 id）、max_uses、valid_for 可选。
func NewCreateHandler(store LinkStore, publicURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cfg link.LinkConfig
		if err := c.ShouldBindJSON(&cfg); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
			return
		}

		l, err := store.CreateWithConfig(c.Request.Context(), cfg)
		if err != nil {
			status := createStatus(err)
			if status == http.StatusInternalServerError {
				c.AbortWithStatusJSON(status, gin.H{"error": "link create failed"})
				return
			}
			c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
			return
		}

		metrics.LinksCreated.Inc()
		c.JSON(http.StatusOK, CreateResponse{
			ID:         l.ID,
			ShortURL:   l.ShortURL(publicURL),
			RedirectTo: l.RedirectTo,
		})
	}
}

// NewRedirectHandler 处理 GET /{id}：解析短码并 307 跳转。
// 挂在 NoRoute 上，所以要自己从 path 里取短码、过滤掉多段路径。
// 解析本身会在存储层原子地消耗一次使用计数；不存在和已过期
// 对外都是同一个 404，不泄露短码是否曾经存在。
func NewRedirectHandler(store LinkStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		id := strings.Trim(c.Request.URL.Path, "/")
		if id == "" || strings.ContainsRune(id, '/') {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		l, err := store.Get(c.Request.Context(), id)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "link resolve failed"})
			return
		}
		if l == nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "link not found"})
			return
		}

		metrics.LinkRedirects.Inc()
		c.Redirect(http.StatusTemporaryRedirect, l.RedirectTo)
	}
}

// NewFindLinkHandler 处理 GET /api/v1/links/:id：查元数据，不消耗使用计数。
func NewFindLinkHandler(store LinkStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		l, err := store.FindByID(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, link.ErrLinkNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "link lookup failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"link":    l,
			"expired": l.IsExpiredAt(link.Now()),
		})
	}
}

// NewCleanHandler 处理 POST /api/v1/admin/clean：立即清理过期行。
func NewCleanHandler(store LinkStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		removed, err := store.Clean(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "clean failed"})
			return
		}
		metrics.LinksCleaned.Add(float64(removed))
		c.JSON(http.StatusOK, gin.H{"removed": removed})
	}
}

// PublicConfig 是暴露给前端表单的只读配置。
type PublicConfig struct {
	PublicURL         string `json:"public_url"`
	DefaultMaxUses    int64  `json:"default_max_uses"`
	DefaultValidFor   int64  `json:"default_valid_for"`
	MaxLinkLength     int    `json:"max_link_length"`
	MaxCustomIDLength int    `json:"max_custom_id_length"`
}

// NewConfigHandler 处理 GET /config。
func NewConfigHandler(pub PublicConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, pub)
	}
}
