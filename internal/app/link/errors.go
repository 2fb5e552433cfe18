package link

import "errors"

// 领域层统一的错误值。
//
// 设计原因：
// - 上层（HTTP）用 errors.Is 稳定地映射状态码，不依赖错误字符串
// - 校验类错误在任何写入发生之前返回，保证失败时没有半写状态
var (
	ErrLinkEmpty             = errors.New("link is empty")
	ErrLinkTooLong           = errors.New("link exceeds max length")
	ErrCustomIDTooLong       = errors.New("custom id exceeds max length")
	ErrLinkConflict          = errors.New("link id already in use")
	ErrLinkNotFound          = errors.New("link not found")
	ErrExpiredLinkProvided   = errors.New("provided link would be expired on creation")
	ErrIDGenerationExhausted = errors.New("id generation attempts exhausted")
)
