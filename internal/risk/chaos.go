package risk

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"regime-trading-bot/config"
)

// Dither bounds per tier, as fractions of the value.
var tierBounds = map[string]float64{
	"LOW":    0.005,
	"MEDIUM": 0.02,
	"HIGH":   0.05,
}

// Chaos perturbs order parameters and timing so executions are not
// perfectly regular. It never touches gate outcomes.
type Chaos struct {
	enabled bool
	bound   float64
	shape   float64
	scale   float64 // seconds
	floor   time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewChaos builds the perturbation layer. A nil src seeds from the clock.
func NewChaos(cfg config.ChaosConfig, src rand.Source) *Chaos {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	bound, ok := tierBounds[strings.ToUpper(cfg.Tier)]
	if !ok {
		bound = tierBounds["LOW"]
	}
	shape, scale := cfg.DelayShape, cfg.DelayScale
	if shape <= 0 {
		shape = 1.5
	}
	if scale <= 0 {
		scale = 0.5
	}
	return &Chaos{
		enabled: cfg.Enabled,
		bound:   bound,
		shape:   shape,
		scale:   scale,
		floor:   cfg.DelayFloor,
		rng:     rand.New(src),
	}
}

// Enabled reports whether perturbation is active.
func (c *Chaos) Enabled() bool { return c.enabled }

// Bound returns the dither bound as a fraction.
func (c *Chaos) Bound() float64 { return c.bound }

// Dither multiplies v by (1+e), e ~ N(0, bound/2) clamped to +/-bound.
func (c *Chaos) Dither(v float64) float64 {
	if !c.enabled {
		return v
	}
	c.mu.Lock()
	e := c.rng.NormFloat64() * c.bound / 2
	c.mu.Unlock()
	e = math.Max(-c.bound, math.Min(c.bound, e))
	return v * (1 + e)
}

// DitherQuantity dithers q and re-caps it at maxQ so the perturbed size
// never carries more risk than the unperturbed one was allowed.
func (c *Chaos) DitherQuantity(q, maxQ float64) float64 {
	d := c.Dither(q)
	if maxQ > 0 && d > maxQ {
		return maxQ
	}
	return d
}

// Delay samples the execution delay: Weibull(shape, scale) seconds, never
// below the floor.
func (c *Chaos) Delay() time.Duration {
	if !c.enabled {
		return 0
	}
	c.mu.Lock()
	u := c.rng.Float64()
	c.mu.Unlock()
	secs := c.scale * math.Pow(-math.Log(1-u), 1/c.shape)
	d := time.Duration(secs * float64(time.Second))
	if d < c.floor {
		d = c.floor
	}
	return d
}

// Wait sleeps for a sampled delay or until ctx is done.
func (c *Chaos) Wait(ctx context.Context) (time.Duration, error) {
	d := c.Delay()
	if d <= 0 {
		return 0, nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return d, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
