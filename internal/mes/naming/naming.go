// Package naming 生成不与已有记录冲突的名称
package naming

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultMaxLength 名称最大长度
	DefaultMaxLength = 140
	counterAttempts  = 10
	randomAttempts   = 100
	hashLen          = 8
	timestampLayout  = "20060102150405"
)

// ErrExhausted 所有候选名均已被占用
var ErrExhausted = errors.New("无法生成唯一名称")

// Checker 名称存在性查询
type Checker interface {
	Exists(ctx context.Context, name string) (bool, error)
}

// CheckerFunc 函数适配器
type CheckerFunc func(ctx context.Context, name string) (bool, error)

func (f CheckerFunc) Exists(ctx context.Context, name string) (bool, error) { return f(ctx, name) }

// SetChecker 内存名称集合
type SetChecker struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

func NewSetChecker(names ...string) *SetChecker {
	s := &SetChecker{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		s.names[n] = struct{}{}
	}
	return s
}

func (s *SetChecker) Exists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.names[name]
	return ok, nil
}

func (s *SetChecker) Add(name string) {
	s.mu.Lock()
	s.names[name] = struct{}{}
	s.mu.Unlock()
}

func (s *SetChecker) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.names)
}

// Generator 名称生成器
type Generator struct {
	Checker   Checker
	MaxLength int
	Now       func() time.Time
	Rand      *rand.Rand

	mu     sync.Mutex
	window string              // issued 对应的时间戳（秒）
	issued map[string]struct{} // 本秒内已发出的名称
}

// NewGenerator 创建生成器；maxLength<=0 时使用默认值
func NewGenerator(checker Checker, maxLength int) *Generator {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Generator{
		Checker:   checker,
		MaxLength: maxLength,
		Now:       time.Now,
		Rand:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
	}
}

// Generate 依次尝试：净化+时间戳 → 计数后缀(1..10) → 随机后缀
func (g *Generator) Generate(ctx context.Context, base string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ts := g.Now().Format(timestampLayout)
	g.roll(ts)
	stem := Sanitize(base) + "-" + ts

	candidate := g.fit(stem)
	ok, err := g.free(ctx, candidate)
	if err != nil {
		return "", err
	}
	if ok {
		return g.reserve(candidate), nil
	}

	for i := 1; i <= counterAttempts; i++ {
		candidate = g.fit(fmt.Sprintf("%s-%d", stem, i))
		if ok, err = g.free(ctx, candidate); err != nil {
			return "", err
		} else if ok {
			return g.reserve(candidate), nil
		}
	}

	for i := 0; i < randomAttempts; i++ {
		candidate = g.fit(fmt.Sprintf("%s-%06d", stem, g.Rand.IntN(1000000)))
		if ok, err = g.free(ctx, candidate); err != nil {
			return "", err
		} else if ok {
			return g.reserve(candidate), nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrExhausted, stem)
}

// roll 时间戳变化后清空已发出集合，旧时间戳的名称不会与新候选名相同
func (g *Generator) roll(ts string) {
	if g.issued == nil || g.window != ts {
		g.window = ts
		g.issued = make(map[string]struct{})
	}
}

func (g *Generator) free(ctx context.Context, name string) (bool, error) {
	if _, taken := g.issued[name]; taken {
		return false, nil
	}
	if g.Checker == nil {
		return true, nil
	}
	taken, err := g.Checker.Exists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("检查名称 %s 失败: %w", name, err)
	}
	return !taken, nil
}

func (g *Generator) reserve(name string) string {
	g.issued[name] = struct{}{}
	return name
}

// Reserve 登记外部已占用的名称，当前这一秒内生成时跳过
func (g *Generator) Reserve(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.roll(g.Now().Format(timestampLayout))
	g.issued[name] = struct{}{}
}

// fit 超长时截断并追加原始候选名的短哈希，避免不同候选截断后相同
func (g *Generator) fit(candidate string) string {
	limit := g.MaxLength
	if limit <= 0 {
		limit = DefaultMaxLength
	}
	if len(candidate) <= limit {
		return candidate
	}
	sum := sha1.Sum([]byte(candidate))
	suffix := "-" + hex.EncodeToString(sum[:])[:hashLen]
	keep := limit - len(suffix)
	if keep < 1 {
		return suffix[1:][:min(hashLen, limit)]
	}
	return strings.TrimRight(candidate[:keep], "-") + suffix
}

// Sanitize 非字母数字及连字符的字符替换为连字符，合并连续连字符
func Sanitize(s string) string {
	var b strings.Builder
	lastHyphen := false
	for _, r := range s {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if ok {
			b.WriteRune(r)
			lastHyphen = false
			continue
		}
		if !lastHyphen {
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "NAME"
	}
	return out
}
