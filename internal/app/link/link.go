package link

import (
	"encoding/json"
	"time"
)

// Link 是短链领域对象（一条持久化记录对应一个短码）。
//
// 说明：
// - ID：短码（拼接成最终短链 URL，例如 https://s.example.com/{id}）
// - RedirectTo：目标长链接（创建时已补全 scheme 前缀）
// - MaxUses：使用次数上限，0 = 不限制，负数 = 立即过期（哨兵值）
// - Invocations：已被解析（跳转）的次数，只增不减
// - CreatedAt / ValidFor：毫秒。ValidFor 0 = 永不过期，负数 = 立即过期
//
// 设计原因：
// - 领域层只关心"业务含义"，不携带 HTTP/DB 细节（状态码、SQL 字段等）
// - 过期判断是 (now, created_at, valid_for, max_uses, invocations) 的纯函数，
//   便于测试，也便于在 SQL 里用同一个谓词做批量清理
type Link struct {
	ID          string `json:"id"`
	RedirectTo  string `json:"redirect_to"`
	MaxUses     int64  `json:"max_uses"`
	Invocations int64  `json:"invocations"`
	CreatedAt   int64  `json:"created_at"`
	ValidFor    int64  `json:"valid_for"`
}

// IsExpiredAt 判断链接在 now（毫秒时间戳）时刻是否已经失效。
//
// 0 与负数语义不同，必须严格区分：
// - valid_for == 0 / max_uses == 0 表示"不限制"
// - valid_for < 0 / max_uses < 0 表示"永远过期"（存储但立即失效）
func (l Link) IsExpiredAt(now int64) bool {
	timeExpired := l.ValidFor < 0 ||
		(l.ValidFor > 0 && now-l.CreatedAt > l.ValidFor)
	usesInvalid := l.MaxUses < 0 ||
		(l.MaxUses > 0 && l.Invocations >= l.MaxUses)
	return timeExpired || usesInvalid
}

// ShortURL 拼出对外展示的完整短链。
func (l Link) ShortURL(publicURL string) string {
	return publicURL + "/" + l.ID
}

// Now 返回毫秒时间戳。所有过期计算统一用它取"当前时间"。
func Now() int64 {
	return time.Now().UnixMilli()
}

// LinkConfig 是创建短链的输入（HTTP 层的 JSON body 直接反序列化成它）。
//
// 可选字段用指针表达"调用方没给"，缺省时回落到进程级默认值；
// custom_id 同时接受更短的别名 "id"。
type LinkConfig struct {
	Link     string
	CustomID *string
	MaxUses  *int64
	ValidFor *int64
}

func (c *LinkConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Link     string  `json:"link"`
		CustomID *string `json:"custom_id"`
		ID       *string `json:"id"`
		MaxUses  *int64  `json:"max_uses"`
		ValidFor *int64  `json:"valid_for"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.Link = raw.Link
	c.CustomID = raw.CustomID
	if c.CustomID == nil {
		// 别名优先级低于全名
		c.CustomID = raw.ID
	}
	c.MaxUses = raw.MaxUses
	c.ValidFor = raw.ValidFor
	return nil
}

// Limits 是注入给核心的进程级配置（只读），避免核心直接读全局配置。
type Limits struct {
	DefaultMaxUses    int64
	DefaultValidFor   int64
	MaxLinkLength     int
	MaxCustomIDLength int
	IDLength          int
	IDMaxAttempts     int
}
