package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"shorty.local/internal/app/link"
	"shorty.local/internal/app/link/cache"
)

// SQL 里的过期谓词必须和 link.IsExpiredAt 保持一致：0 = 不限制，
// 负数 = 永远过期；created_at + valid_for < now 等价于 now - created_at > valid_for。

// LinkStore 是短链持久化的唯一入口：存储层的所有写都经过它。
//
// 正确性依赖数据库的事务保证而不是进程内的锁：
// - 解析（读 + 计数）是单条 UPDATE ... RETURNING
// - 创建是单条条件 upsert，冲突检查和替换在一条语句里原子完成
// - 清理是单条 DELETE，取一个 now 快照
type LinkStore struct {
	db     *pgxpool.Pool
	misses *cache.MissCache // 可为 nil（测试/降级运行）
	filter *cache.IDFilter  // 可为 nil
	limits link.Limits
	nowFn  func() int64
}

func NewLinkStore(db *pgxpool.Pool, misses *cache.MissCache, filter *cache.IDFilter, limits link.Limits) *LinkStore {
	return &LinkStore{
		db:     db,
		misses: misses,
		filter: filter,
		limits: limits,
		nowFn:  link.Now,
	}
}

// Create 用进程级默认配置创建短链（短码自动生成）。
func (s *LinkStore) Create(ctx context.Context, url string) (link.Link, error) {
	return s.CreateWithConfig(ctx, link.LinkConfig{Link: url})
}

// upsertSQL：条件原子替换（conditional atomic replace）。
//
// 先检查再插入的两步写法在并发下是已知的竞态：两个同码创建可能都通过
// 检查然后都写成功。这里把"占用着的短码只有过期了才允许覆盖"放进
// DO UPDATE 的 WHERE 里，由数据库在一条语句内原子判定；
// 活跃行导致 WHERE 为假时语句不返回行，映射成冲突错误。
const upsertSQL = `
INSERT INTO links (id, redirect_to, max_uses, invocations, created_at, valid_for)
VALUES ($1, $2, $3, 0, $4, $5)
ON CONFLICT (id) DO UPDATE
SET redirect_to = EXCLUDED.redirect_to,
    max_uses    = EXCLUDED.max_uses,
    invocations = 0,
    created_at  = EXCLUDED.created_at,
    valid_for   = EXCLUDED.valid_for
WHERE links.valid_for < 0
   OR (links.valid_for > 0 AND links.created_at + links.valid_for < $4)
   OR links.max_uses < 0
   OR (links.max_uses > 0 AND links.invocations >= links.max_uses)
RETURNING id`

// CreateWithConfig 按调用方给的配置创建短链。
//
// 所有校验都在写库之前完成，校验失败时不会产生任何半写状态：
// 1. 短码：自定义的先查长度再清洗非法字符；没给就随机分配
// 2. 目标：非空、长度上限、补全 scheme
// 3. 负数哨兵配置会让新行立即过期，直接拒绝而不是落一条死数据
// 4. 冲突检查与替换由 upsertSQL 一条语句完成
func (s *LinkStore) CreateWithConfig(ctx context.Context, cfg link.LinkConfig) (link.Link, error) {
	var id string
	if cfg.CustomID != nil && *cfg.CustomID != "" {
		if len(*cfg.CustomID) > s.limits.MaxCustomIDLength {
			return link.Link{}, link.ErrCustomIDTooLong
		}
		id = link.SanitizeID(*cfg.CustomID)
	} else {
		var err error
		id, err = s.allocateID(ctx)
		if err != nil {
			return link.Link{}, err
		}
	}

	if cfg.Link == "" {
		return link.Link{}, link.ErrLinkEmpty
	}
	if len(cfg.Link) > s.limits.MaxLinkLength {
		return link.Link{}, link.ErrLinkTooLong
	}

	maxUses := s.limits.DefaultMaxUses
	if cfg.MaxUses != nil {
		maxUses = *cfg.MaxUses
	}
	validFor := s.limits.DefaultValidFor
	if cfg.ValidFor != nil {
		validFor = *cfg.ValidFor
	}

	now := s.nowFn()
	l := link.Link{
		ID:          id,
		RedirectTo:  link.EnsureHTTPPrefix(cfg.Link),
		MaxUses:     maxUses,
		Invocations: 0,
		CreatedAt:   now,
		ValidFor:    validFor,
	}
	if l.IsExpiredAt(now) {
		return link.Link{}, link.ErrExpiredLinkProvided
	}

	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var got string
	err := s.db.
		QueryRow(dbctx, upsertSQL, l.ID, l.RedirectTo, l.MaxUses, l.CreatedAt, l.ValidFor).
		Scan(&got)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// 短码被一条仍然活跃的记录占用
			return link.Link{}, link.ErrLinkConflict
		}
		slog.Error("link create failed", "err", err, "id", l.ID)
		return link.Link{}, fmt.Errorf("link create: %w", err)
	}

	if s.filter != nil {
		s.filter.Add(l.ID)
	}
	// 覆盖此前的负缓存，否则新短码在 TTL 内一直 404
	if s.misses != nil {
		cacheCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		s.misses.Forget(cacheCtx, l.ID)
	}

	return l, nil
}

// resolveSQL：读 + 计数在一条语句里原子完成。
//
// 拆成 SELECT 再 UPDATE 两步会有竞态：两个并发解析同一条临近用尽的
// 短链都读到未超限的计数、都放行，使用上限就被突破了。
const resolveSQL = `
UPDATE links SET invocations = invocations + 1
WHERE id = $1
RETURNING id, redirect_to, max_uses, invocations, created_at, valid_for`

// Get 解析短码。返回 nil 表示 absent：不存在，或已过期（过期行可能还在
// 库里等清理，但永远不暴露给调用方）。
func (s *LinkStore) Get(ctx context.Context, id string) (*link.Link, error) {
	if s.misses != nil && s.misses.IsMissing(ctx, id) {
		return nil, nil
	}

	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	var l link.Link
	err := s.db.QueryRow(dbctx, resolveSQL, id).
		Scan(&l.ID, &l.RedirectTo, &l.MaxUses, &l.Invocations, &l.CreatedAt, &l.ValidFor)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if s.misses != nil {
				s.misses.MarkMissing(ctx, id)
			}
			return nil, nil
		}
		slog.Error("link resolve failed", "err", err, "id", id)
		return nil, fmt.Errorf("link resolve: %w", err)
	}

	// 过期判定用自增之前的计数：本次解析消耗的这一次不算在自己头上，
	// 否则 max_uses=1 的短链一次都用不了。
	before := l
	before.Invocations--
	if before.IsExpiredAt(s.nowFn()) {
		slog.Debug("expired link requested", "id", id)
		return nil, nil
	}
	return &l, nil
}

// FindByID 查短链元数据，不增加使用计数（信息接口、测试用）。
// 不存在返回 link.ErrLinkNotFound；过期行也原样返回，由调用方判断。
func (s *LinkStore) FindByID(ctx context.Context, id string) (*link.Link, error) {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	var l link.Link
	err := s.db.
		QueryRow(dbctx, `SELECT id, redirect_to, max_uses, invocations, created_at, valid_for FROM links WHERE id = $1`, id).
		Scan(&l.ID, &l.RedirectTo, &l.MaxUses, &l.Invocations, &l.CreatedAt, &l.ValidFor)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, link.ErrLinkNotFound
		}
		slog.Error("link lookup failed", "err", err, "id", id)
		return nil, fmt.Errorf("link lookup: %w", err)
	}
	return &l, nil
}

const cleanSQL = `
DELETE FROM links
WHERE valid_for < 0
   OR (valid_for > 0 AND created_at + valid_for < $1)
   OR max_uses < 0
   OR (max_uses > 0 AND invocations >= max_uses)`

// Clean 删掉所有按单一 now 快照判定已过期的行，返回删除数。
// 幂等：紧接着再调一次删除 0 行。可以和读写并发执行。
func (s *LinkStore) Clean(ctx context.Context) (int64, error) {
	dbctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	now := s.nowFn()
	tag, err := s.db.Exec(dbctx, cleanSQL, now)
	if err != nil {
		slog.Error("link clean failed", "err", err)
		return 0, fmt.Errorf("link clean: %w", err)
	}
	removed := tag.RowsAffected()
	slog.Info("cleaned stale links", "removed", removed)
	return removed, nil
}

// allocateID 随机分配一个未被活跃短链占用的短码，重试次数有上限。
//
// 无上限重试在活跃集合逼近短码空间时就是拒绝服务，所以打满预算后
// 明确返回 ErrIDGenerationExhausted。
// 布隆过滤器快速路径：一定没见过的候选码直接接受，省一次数据库往返；
// 过滤器漏掉的历史短码由 upsertSQL 的条件写入兜底，不影响正确性。
func (s *LinkStore) allocateID(ctx context.Context) (string, error) {
	attempts := s.limits.IDMaxAttempts
	if attempts <= 0 {
		attempts = 10
	}
	for i := 0; i < attempts; i++ {
		id := link.RandomID(s.limits.IDLength)

		if s.filter != nil && !s.filter.MightExist(id) {
			return id, nil
		}

		holder, err := s.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, link.ErrLinkNotFound) {
				return id, nil
			}
			return "", err
		}
		// 过期的占用者不阻塞分配：创建时会被条件 upsert 替换掉
		if holder.IsExpiredAt(s.nowFn()) {
			return id, nil
		}
	}
	return "", link.ErrIDGenerationExhausted
}
