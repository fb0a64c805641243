package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadReturnsDefaultProfileForNewUser(t *testing.T) {
	s := New(50)
	ctx, err := s.Load(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, RiskModerate, ctx.Profile.RiskTolerance)
	require.Empty(t, ctx.Turns)
}

func TestAppendTurnTrimsToMax(t *testing.T) {
	s := New(3)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendTurn(ctx, "u1", "user", "msg"))
	}
	got, err := s.Load(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got.Turns, 3)
}

func TestUpdatePreferencesMergesAtTopLevel(t *testing.T) {
	s := New(50)
	ctx := context.Background()
	require.NoError(t, s.UpdatePreferences(ctx, "u1", map[string]any{"theme": "dark"}))
	require.NoError(t, s.UpdatePreferences(ctx, "u1", map[string]any{"notify": true}))

	got, err := s.Load(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "dark", got.Profile.Preferences["theme"])
	require.Equal(t, true, got.Profile.Preferences["notify"])
}

func TestUpdatePortfolioAccumulatesAverageCost(t *testing.T) {
	s := New(50)
	ctx := context.Background()
	require.NoError(t, s.UpdatePortfolio(ctx, "u1", []PortfolioDelta{
		{Ticker: "AAPL", DeltaShares: 10, Price: 100},
	}))
	require.NoError(t, s.UpdatePortfolio(ctx, "u1", []PortfolioDelta{
		{Ticker: "AAPL", DeltaShares: 10, Price: 200},
	}))

	got, err := s.Load(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got.Profile.Portfolio, 1)
	require.Equal(t, 20.0, got.Profile.Portfolio[0].Shares)
	require.InDelta(t, 150.0, got.Profile.Portfolio[0].AvgCost, 1e-9)
}

func TestUpdatePortfolioRejectsNegativeSharesWithoutAllowShort(t *testing.T) {
	s := New(50)
	ctx := context.Background()
	require.NoError(t, s.UpdatePortfolio(ctx, "u1", []PortfolioDelta{{Ticker: "AAPL", DeltaShares: 5, Price: 100}}))

	err := s.UpdatePortfolio(ctx, "u1", []PortfolioDelta{{Ticker: "AAPL", DeltaShares: -10}})
	require.Error(t, err)
}

func TestUpdatePortfolioAllowsShortWithPreference(t *testing.T) {
	s := New(50)
	ctx := context.Background()
	require.NoError(t, s.UpdatePreferences(ctx, "u1", map[string]any{"allow_short": true}))
	require.NoError(t, s.UpdatePortfolio(ctx, "u1", []PortfolioDelta{{Ticker: "TSLA", DeltaShares: -5}}))

	got, err := s.Load(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, -5.0, got.Profile.Portfolio[0].Shares)
}

func TestConcurrentAppendsForSameUserDoNotLoseTurns(t *testing.T) {
	s := New(1000)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.AppendTurn(ctx, "u1", "user", "msg")
		}()
	}
	wg.Wait()

	got, err := s.Load(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got.Turns, 50)
}
