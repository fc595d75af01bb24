// Package tier decides whether an analysis run is engine-only or
// AI-enhanced and keeps the free trial counter honest under concurrency.
package tier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/CIPHER-000/chess-AI-sub000/internal/model"
)

// DefaultFreeLimit is the number of AI-enhanced analyses a free user gets.
const DefaultFreeLimit = 5

// QuotaStore is the slice of the user store the gate needs.
type QuotaStore interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
	ConsumeAIQuota(ctx context.Context, userID int64, now time.Time) (*model.User, bool, error)
	SetTier(ctx context.Context, userID int64, tier model.Tier, limit int, resetTrial bool) (*model.User, error)
}

// Config configures a Gate.
type Config struct {
	Store     QuotaStore
	FreeLimit int
	// RaceRetries bounds how often a lost quota race is retried before
	// falling back to engine-only.
	RaceRetries int
	Logger      zerolog.Logger
	Now         func() time.Time
}

// Decision is the outcome of one gate evaluation.
type Decision struct {
	Mode      model.Mode `json:"mode"`
	Tier      model.Tier `json:"tier"`
	Used      int        `json:"used"`
	Limit     int        `json:"limit"`
	Remaining int        `json:"remaining"` // -1 is unlimited
	Exhausted bool       `json:"exhausted"`
}

// Gate grants AI-enhanced mode against a user's tier and quota.
type Gate struct {
	cfg Config
	log zerolog.Logger
}

// New returns a Gate with defaults applied.
func New(cfg Config) (*Gate, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("tier: store is required")
	}
	if cfg.FreeLimit <= 0 {
		cfg.FreeLimit = DefaultFreeLimit
	}
	if cfg.RaceRetries <= 0 {
		cfg.RaceRetries = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Gate{cfg: cfg, log: cfg.Logger.With().Str("component", "tier").Logger()}, nil
}

// FreeLimit returns the configured trial size.
func (g *Gate) FreeLimit() int { return g.cfg.FreeLimit }

// Decide resolves the mode for one request and consumes a trial slot when
// AI-enhanced mode is granted to a free user. Exhaustion is not an error.
func (g *Gate) Decide(ctx context.Context, userID int64) (Decision, error) {
	for attempt := 0; ; attempt++ {
		u, granted, err := g.cfg.Store.ConsumeAIQuota(ctx, userID, g.cfg.Now())
		switch {
		case errors.Is(err, model.ErrQuotaRaceRejected):
			if attempt < g.cfg.RaceRetries {
				continue
			}
			g.log.Debug().Int64("user_id", userID).Int("attempts", attempt+1).Msg("quota race lost, falling back to engine-only")
			if u == nil {
				if u, err = g.cfg.Store.GetUser(ctx, userID); err != nil {
					return Decision{}, err
				}
			}
			return decisionFor(u, false), nil
		case err != nil:
			return Decision{}, err
		}

		d := decisionFor(u, granted)
		if !granted {
			g.log.Info().Int64("user_id", userID).Int("used", u.AIAnalysesUsed).Int("limit", u.AIAnalysesLimit).Msg("trial exhausted, engine-only analysis")
		}
		return d, nil
	}
}

// Status reports the quota without changing it.
func (g *Gate) Status(ctx context.Context, userID int64) (model.QuotaStatus, error) {
	u, err := g.cfg.Store.GetUser(ctx, userID)
	if err != nil {
		return model.QuotaStatus{}, err
	}
	return model.QuotaStatusOf(u), nil
}

// Peek returns the decision a request would get, without consuming quota.
func (g *Gate) Peek(ctx context.Context, userID int64) (Decision, error) {
	u, err := g.cfg.Store.GetUser(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	return decisionFor(u, u.Remaining() != 0), nil
}

// SetTier upgrades or downgrades a user. Pro users get an unlimited quota;
// free users get the configured trial, optionally reset to unused.
func (g *Gate) SetTier(ctx context.Context, userID int64, tier model.Tier, resetTrial bool) (model.QuotaStatus, error) {
	if !tier.Valid() {
		return model.QuotaStatus{}, fmt.Errorf("unknown tier %q", tier)
	}
	limit := g.cfg.FreeLimit
	if tier == model.TierPro {
		limit = model.Unlimited
	}
	u, err := g.cfg.Store.SetTier(ctx, userID, tier, limit, resetTrial)
	if err != nil {
		return model.QuotaStatus{}, err
	}
	g.log.Info().Int64("user_id", userID).Str("tier", string(tier)).Bool("reset_trial", resetTrial).Msg("tier changed")
	return model.QuotaStatusOf(u), nil
}

func decisionFor(u *model.User, granted bool) Decision {
	d := Decision{
		Mode:      model.ModeEngineOnly,
		Tier:      u.Tier,
		Used:      u.AIAnalysesUsed,
		Limit:     u.AIAnalysesLimit,
		Remaining: u.Remaining(),
		Exhausted: u.Exhausted(),
	}
	if granted {
		d.Mode = model.ModeAIEnhanced
	}
	return d
}

// UpgradePrompt returns the message shown to users who ran out of AI analyses,
// or "" when no prompt applies.
func UpgradePrompt(d Decision) string {
	if d.Tier != model.TierFree || !d.Exhausted {
		return ""
	}
	return fmt.Sprintf("You have used all %d free AI-enhanced analyses. Upgrade to Pro for unlimited AI-enhanced analysis; engine analysis remains available.", d.Limit)
}
