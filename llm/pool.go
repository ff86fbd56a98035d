package llm

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Balance strategies for Pool.
const (
	BalanceRoundRobin = "round_robin"
	BalanceRandom     = "random"
)

// Pool spreads requests over interchangeable service instances. Each
// instance may carry its own in-flight bound.
type Pool struct {
	members  []poolMember
	strategy string
	next     atomic.Uint64
}

type poolMember struct {
	provider Provider
	sem      *semaphore.Weighted // nil when unbounded
}

// NewPool creates a pool from already-built providers. limits[i] bounds
// concurrent calls on providers[i]; a missing or non-positive limit means
// unbounded.
func NewPool(strategy string, providers []Provider, limits []int) (*Pool, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("llm pool needs at least one provider")
	}
	switch strategy {
	case "":
		strategy = BalanceRoundRobin
	case BalanceRoundRobin, BalanceRandom:
	default:
		return nil, fmt.Errorf("unknown balance strategy: %s", strategy)
	}

	p := &Pool{strategy: strategy}
	for i, prov := range providers {
		m := poolMember{provider: prov}
		if i < len(limits) && limits[i] > 0 {
			m.sem = semaphore.NewWeighted(int64(limits[i]))
		}
		p.members = append(p.members, m)
	}
	return p, nil
}

// NewPoolFromConfigs builds one provider per config and pools them.
func NewPoolFromConfigs(strategy string, cfgs []Config) (*Pool, error) {
	providers := make([]Provider, 0, len(cfgs))
	limits := make([]int, 0, len(cfgs))
	for i, cfg := range cfgs {
		prov, err := NewProvider(cfg)
		if err != nil {
			return nil, fmt.Errorf("instance %d: %w", i, err)
		}
		providers = append(providers, prov)
		limits = append(limits, cfg.MaxConcurrent)
	}
	return NewPool(strategy, providers, limits)
}

// Size returns the number of instances.
func (p *Pool) Size() int { return len(p.members) }

func (p *Pool) pick() *poolMember {
	if len(p.members) == 1 {
		return &p.members[0]
	}
	var i int
	if p.strategy == BalanceRandom {
		i = rand.IntN(len(p.members))
	} else {
		i = int((p.next.Add(1) - 1) % uint64(len(p.members)))
	}
	return &p.members[i]
}

// ChatWithImages forwards the request to the next selected instance.
func (p *Pool) ChatWithImages(ctx context.Context, req VisionChatRequest) (*ChatResponse, error) {
	m := p.pick()
	if m.sem != nil {
		if err := m.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer m.sem.Release(1)
	}
	return m.provider.ChatWithImages(ctx, req)
}
