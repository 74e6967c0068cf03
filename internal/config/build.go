package config

import (
	"fmt"
	"log"
	"time"

	"github.com/tokligence/flowshaper/internal/ratelimit"
	"github.com/tokligence/flowshaper/internal/shaper"
)

// BuildShaper wires a validated configuration into a ready container:
// child queues, scheduler, and rate limiters. The caller supplies the
// clock the limiters will read and the payload size projection.
func BuildShaper[P any](cfg *ShaperConfig, clock shaper.Clock, sizeFn shaper.SizeFunc[P]) (*shaper.PriorityQueues[P], error) {
	pqs, err := shaper.New(shaper.Priority(cfg.MaxPriority), sizeFn)
	if err != nil {
		return nil, err
	}

	scheduling, err := buildScheduling(cfg, pqs)
	if err != nil {
		return nil, err
	}
	pqs.SetScheduling(scheduling)

	for _, lc := range cfg.Limiters {
		for _, prio := range lc.Priorities {
			limiter, err := buildLimiter[P](lc, clock, sizeFn)
			if err != nil {
				return nil, err
			}
			pqs.Queue(shaper.Priority(prio)).AddRateLimiter(limiter)
		}
	}

	log.Printf("[INFO] config: shaper wired (levels=%d, policy=%s, limiters=%d)",
		cfg.MaxPriority, scheduling.Policy(), len(cfg.Limiters))
	return pqs, nil
}

func buildScheduling[P any](cfg *ShaperConfig, pqs *shaper.PriorityQueues[P]) (shaper.Scheduler, error) {
	policy, err := ParsePolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}
	endian, err := ParseEndian(cfg.PriorityEndian)
	if err != nil {
		return nil, err
	}

	switch policy {
	case shaper.PolicyRoundRobin:
		return shaper.NewRoundRobin(pqs), nil
	case shaper.PolicyStrictPriority:
		return shaper.NewStrictPriorityEndian(pqs, endian), nil
	case shaper.PolicyWFQ:
		wfq := shaper.NewWFQ(pqs)
		if len(cfg.WFQTokens) > 0 {
			var tokens shaper.WFQTokens
			for i, token := range cfg.WFQTokens {
				tokens[i] = uint8(token)
			}
			wfq.SetTokens(tokens)
		}
		return wfq, nil
	default:
		return nil, fmt.Errorf("config: unhandled policy %v", policy)
	}
}

func buildLimiter[P any](lc LimiterConfig, clock shaper.Clock, sizeFn shaper.SizeFunc[P]) (shaper.Limiter[P], error) {
	switch lc.Kind {
	case LimiterTokenBucket:
		return ratelimit.NewTokenBucket(clock, sizeFn, lc.CapacityBytes, lc.BytesPerSec), nil
	case LimiterLeakyBucket:
		return ratelimit.NewLeakyBucket[P](clock, lc.DispatchesPerSec, lc.Burst), nil
	case LimiterSlidingWindow:
		window := uint64(time.Duration(lc.WindowMS) * time.Millisecond / time.Microsecond)
		return ratelimit.NewSlidingWindow[P](clock, window, lc.MaxInWindow), nil
	default:
		return nil, fmt.Errorf("config: unknown limiter kind %q", lc.Kind)
	}
}
