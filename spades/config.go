package spades

import (
	"fmt"
	"time"
)

// Rules are fixed at game creation and immutable afterwards.
type Rules struct {
	AllowNil      bool
	AllowBlindNil bool

	// Score floor (negative) and ceiling (positive) for game completion.
	MinPoints int
	MaxPoints int

	// Wager applied by the external ledger on completion; the engine never
	// touches balances itself.
	CoinStake int64

	// Optional: turn timeout (0 disables auto-action)
	TurnTimeout time.Duration

	// RNG seed (0 => time-based)
	Seed int64
}

func DefaultRules() Rules {
	return Rules{
		AllowNil:  true,
		MinPoints: -250,
		MaxPoints: 500,
	}
}

func (r Rules) validate() error {
	if r.MaxPoints <= 0 {
		return fmt.Errorf("MaxPoints must be > 0")
	}
	if r.MinPoints >= 0 {
		return fmt.Errorf("MinPoints must be < 0")
	}
	if r.CoinStake < 0 {
		return fmt.Errorf("CoinStake must be >= 0")
	}
	if r.TurnTimeout < 0 {
		return fmt.Errorf("TurnTimeout must be >= 0")
	}
	return nil
}
