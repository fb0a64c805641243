// Package memory implements the contextual memory service from spec.md
// §4.6: per-user preferences, portfolio state, and a bounded conversation
// tail, injected into every agent invocation. Loss is tolerated (soft
// state); this package is the only component permitted to mutate user
// state.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RiskTolerance is one of the enumerated values in spec.md §3.
type RiskTolerance string

const (
	RiskConservative RiskTolerance = "conservative"
	RiskModerate     RiskTolerance = "moderate"
	RiskAggressive   RiskTolerance = "aggressive"
)

// Turn is one entry of a user's conversation tail.
type Turn struct {
	Timestamp time.Time
	Role      string // "user" | "assistant"
	Text      string
}

// Position is one portfolio holding.
type Position struct {
	Ticker  string
	Shares  float64
	AvgCost float64
}

// Profile is the long-lived, per-user state. Preferences is a free-form
// mapping; Watchlist is represented as a set.
type Profile struct {
	UserID        string
	Preferences   map[string]any
	RiskTolerance RiskTolerance
	Portfolio     []Position
	Watchlist     map[string]struct{}
}

func newProfile(userID string) Profile {
	return Profile{
		UserID:        userID,
		Preferences:   map[string]any{},
		RiskTolerance: RiskModerate,
		Watchlist:     map[string]struct{}{},
	}
}

// Context is what Load returns: the user's profile plus their recent
// conversation tail, ready to be injected into an agent invocation.
type Context struct {
	Profile Profile
	Turns   []Turn
}

// PortfolioDelta is one entry of the diff set UpdatePortfolio accepts.
type PortfolioDelta struct {
	Ticker      string
	DeltaShares float64
	Price       float64
}

type record struct {
	mu      sync.Mutex
	profile Profile
	turns   []Turn
}

// Service is the contextual memory service. It is safe for concurrent use
// across users; operations for the same user_id serialize against a
// per-user lock so append_turn/update_* calls never interleave.
type Service struct {
	mu       sync.RWMutex
	records  map[string]*record
	maxTurns int
}

// New builds a Service that retains at most maxTurnsPerUser conversation
// turns per user (spec.md default 50).
func New(maxTurnsPerUser int) *Service {
	if maxTurnsPerUser <= 0 {
		maxTurnsPerUser = 50
	}
	return &Service{records: make(map[string]*record), maxTurns: maxTurnsPerUser}
}

func (s *Service) recordFor(userID string) *record {
	s.mu.RLock()
	r, ok := s.records[userID]
	s.mu.RUnlock()
	if ok {
		return r
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[userID]; ok {
		return r
	}
	r = &record{profile: newProfile(userID)}
	s.records[userID] = r
	return r
}

// Load returns a snapshot of the user's profile and conversation tail.
func (s *Service) Load(_ context.Context, userID string) (Context, error) {
	r := s.recordFor(userID)
	r.mu.Lock()
	defer r.mu.Unlock()
	return Context{Profile: copyProfile(r.profile), Turns: append([]Turn(nil), r.turns...)}, nil
}

// AppendTurn appends one turn, evicting the oldest beyond maxTurns.
func (s *Service) AppendTurn(_ context.Context, userID, role, text string) error {
	r := s.recordFor(userID)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, Turn{Timestamp: time.Now(), Role: role, Text: text})
	if len(r.turns) > s.maxTurns {
		r.turns = r.turns[len(r.turns)-s.maxTurns:]
	}
	return nil
}

// UpdatePreferences merges patch into the user's preferences at the top
// level (patch keys overwrite existing keys of the same name).
func (s *Service) UpdatePreferences(_ context.Context, userID string, patch map[string]any) error {
	r := s.recordFor(userID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.profile.Preferences == nil {
		r.profile.Preferences = map[string]any{}
	}
	for k, v := range patch {
		r.profile.Preferences[k] = v
	}
	return nil
}

// UpdatePortfolio applies diffs to the user's portfolio. An operation that
// would drive a ticker's shares below zero is rejected unless the user's
// preferences carry an explicit "allow_short": true.
func (s *Service) UpdatePortfolio(_ context.Context, userID string, diffs []PortfolioDelta) error {
	r := s.recordFor(userID)
	r.mu.Lock()
	defer r.mu.Unlock()

	allowShort, _ := r.profile.Preferences["allow_short"].(bool)

	byTicker := make(map[string]int, len(r.profile.Portfolio))
	for i, p := range r.profile.Portfolio {
		byTicker[p.Ticker] = i
	}

	for _, d := range diffs {
		idx, exists := byTicker[d.Ticker]
		var current Position
		if exists {
			current = r.profile.Portfolio[idx]
		} else {
			current = Position{Ticker: d.Ticker}
		}

		newShares := current.Shares + d.DeltaShares
		if newShares < 0 && !allowShort {
			return fmt.Errorf("memory: rejecting update for %s: shares would go negative (%.4f) without allow_short preference", d.Ticker, newShares)
		}

		newAvgCost := current.AvgCost
		if d.DeltaShares > 0 && d.Price > 0 {
			totalCostBefore := current.AvgCost * current.Shares
			totalCostAdded := d.Price * d.DeltaShares
			if newShares > 0 {
				newAvgCost = (totalCostBefore + totalCostAdded) / newShares
			}
		}

		updated := Position{Ticker: d.Ticker, Shares: newShares, AvgCost: newAvgCost}
		if exists {
			r.profile.Portfolio[idx] = updated
		} else {
			byTicker[d.Ticker] = len(r.profile.Portfolio)
			r.profile.Portfolio = append(r.profile.Portfolio, updated)
		}
	}
	return nil
}

func copyProfile(p Profile) Profile {
	prefs := make(map[string]any, len(p.Preferences))
	for k, v := range p.Preferences {
		prefs[k] = v
	}
	watch := make(map[string]struct{}, len(p.Watchlist))
	for k := range p.Watchlist {
		watch[k] = struct{}{}
	}
	portfolio := append([]Position(nil), p.Portfolio...)
	return Profile{
		UserID:        p.UserID,
		Preferences:   prefs,
		RiskTolerance: p.RiskTolerance,
		Portfolio:     portfolio,
		Watchlist:     watch,
	}
}
