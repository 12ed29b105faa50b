package texture

import (
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/microgpu/internal/color"
)

var ErrPoolExhausted = errors.New("texture: pool exhausted")

// Pool hands out pixel storage. Release must receive slices obtained from
// the same pool's Allocate.
type Pool interface {
	Name() string
	Allocate(pixels int) ([]color.Color, error)
	Release(pixels []color.Color)
}

// PoolPreference picks which pool a definition tries first.
type PoolPreference int

const (
	PreferFast PoolPreference = iota
	PreferSlow
)

func (p PoolPreference) String() string {
	if p == PreferSlow {
		return "slow"
	}
	return "fast"
}

// MaxAllocationPixels caps a single allocation from any BudgetPool, budgeted
// or not. It covers a 4096x4096 texture.
const MaxAllocationPixels = 4096 * 4096

// BudgetPool is a heap-backed pool limited to a fixed number of bytes. A
// budget of zero or less leaves only the per-allocation cap.
type BudgetPool struct {
	name   string
	budget int

	mu   sync.Mutex
	used int
}

func NewBudgetPool(name string, budgetBytes int) *BudgetPool {
	return &BudgetPool{name: name, budget: budgetBytes}
}

func (p *BudgetPool) Name() string {
	return p.name
}

func (p *BudgetPool) Allocate(pixels int) ([]color.Color, error) {
	if pixels <= 0 {
		return nil, fmt.Errorf("%w: %s pool asked for %d pixels", ErrPoolExhausted, p.name, pixels)
	}
	if pixels > MaxAllocationPixels {
		return nil, fmt.Errorf("%w: %s pool refuses %d pixels (max %d per texture)",
			ErrPoolExhausted, p.name, pixels, MaxAllocationPixels)
	}
	size := pixels * color.BytesPerPixel

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.budget > 0 && p.used+size > p.budget {
		return nil, fmt.Errorf("%w: %s pool has %d of %d bytes free, needs %d",
			ErrPoolExhausted, p.name, p.budget-p.used, p.budget, size)
	}
	p.used += size
	return make([]color.Color, pixels), nil
}

func (p *BudgetPool) Release(pixels []color.Color) {
	if len(pixels) == 0 {
		return
	}
	p.mu.Lock()
	p.used -= len(pixels) * color.BytesPerPixel
	if p.used < 0 {
		p.used = 0
	}
	p.mu.Unlock()
}

// Used returns the bytes currently handed out.
func (p *BudgetPool) Used() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used
}

func (p *BudgetPool) Budget() int {
	return p.budget
}

// Policy allocates from Preferred and falls back to Fallback when the
// preferred pool refuses.
type Policy struct {
	Preferred Pool
	Fallback  Pool
}

// Allocate returns the storage along with the pool it must be released to.
func (p Policy) Allocate(pixels int) ([]color.Color, Pool, error) {
	var firstErr error
	if p.Preferred != nil {
		buf, err := p.Preferred.Allocate(pixels)
		if err == nil {
			return buf, p.Preferred, nil
		}
		firstErr = err
	}
	if p.Fallback != nil && p.Fallback != p.Preferred {
		buf, err := p.Fallback.Allocate(pixels)
		if err == nil {
			return buf, p.Fallback, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = fmt.Errorf("%w: no pools configured", ErrPoolExhausted)
	}
	return nil, nil, firstErr
}
