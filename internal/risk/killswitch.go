package risk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"regime-trading-bot/internal/kvstore"
)

// KillState is the persisted panic flag.
type KillState struct {
	Engaged bool      `json:"engaged"`
	Reason  string    `json:"reason,omitempty"`
	SetBy   string    `json:"set_by,omitempty"`
	SetAt   time.Time `json:"set_at"`
}

// KillSwitch stores the global panic flag in the shared store so every
// pipeline instance sees it.
type KillSwitch struct {
	store  kvstore.Store
	key    string
	logger zerolog.Logger
	now    func() time.Time
}

func NewKillSwitch(store kvstore.Store, key string, logger zerolog.Logger) *KillSwitch {
	if key == "" {
		key = "killswitch:global"
	}
	return &KillSwitch{
		store:  store,
		key:    key,
		logger: logger.With().Str("component", "KillSwitch").Logger(),
		now:    time.Now,
	}
}

// State returns the current flag. A missing key means disengaged.
func (k *KillSwitch) State(ctx context.Context) (KillState, error) {
	var st KillState
	err := kvstore.GetJSON(ctx, k.store, k.key, &st)
	if errors.Is(err, kvstore.ErrNotFound) {
		return KillState{}, nil
	}
	if err != nil {
		return KillState{}, fmt.Errorf("read kill switch: %w", err)
	}
	return st, nil
}

// Engaged reports whether trading is halted.
func (k *KillSwitch) Engaged(ctx context.Context) (bool, error) {
	st, err := k.State(ctx)
	return st.Engaged, err
}

// Engage halts trading until Disengage is called.
func (k *KillSwitch) Engage(ctx context.Context, reason, by string) error {
	st := KillState{Engaged: true, Reason: reason, SetBy: by, SetAt: k.now().UTC()}
	if err := kvstore.PutJSON(ctx, k.store, k.key, st, 0); err != nil {
		return fmt.Errorf("engage kill switch: %w", err)
	}
	k.logger.Warn().Str("reason", reason).Str("by", by).Msg("Kill switch ENGAGED")
	return nil
}

// Disengage resumes trading.
func (k *KillSwitch) Disengage(ctx context.Context, by string) error {
	st := KillState{Engaged: false, SetBy: by, SetAt: k.now().UTC()}
	if err := kvstore.PutJSON(ctx, k.store, k.key, st, 0); err != nil {
		return fmt.Errorf("disengage kill switch: %w", err)
	}
	k.logger.Info().Str("by", by).Msg("Kill switch disengaged")
	return nil
}
