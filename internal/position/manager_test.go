package position

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoTradeSim/internal/domain"
)

func ptr(v float64) *float64 { return &v }

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestOpenValidation(t *testing.T) {
	cfg := SizingConfig{}

	tests := []struct {
		name     string
		existing *domain.Position
		in       OpenInput
		wantCode domain.RejectionCode
	}{
		{
			name:     "non-positive price",
			in:       OpenInput{Price: 0, Quantity: ptr(1)},
			wantCode: domain.RejectInvalidPrice,
		},
		{
			name:     "negative price",
			in:       OpenInput{Price: -10, Quantity: ptr(1)},
			wantCode: domain.RejectInvalidPrice,
		},
		{
			name:     "explicit zero quantity",
			in:       OpenInput{Price: 100, Quantity: ptr(0)},
			wantCode: domain.RejectZeroQuantity,
		},
		{
			name:     "explicit negative quantity",
			in:       OpenInput{Price: 100, Quantity: ptr(-1)},
			wantCode: domain.RejectNegativeQuantity,
		},
		{
			name:     "max positions reached for new position",
			in:       OpenInput{Price: 100, Quantity: ptr(1), AvailableCapital: 1000, OpenPositions: DefaultMaxPositions},
			wantCode: domain.RejectMaxPositions,
		},
		{
			name:     "insufficient capital",
			in:       OpenInput{Price: 100, Quantity: ptr(5), AvailableCapital: 499},
			wantCode: domain.RejectInsufficientCapital,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Open(tt.existing, tt.in, cfg)
			assert.False(t, res.Success)
			assert.Equal(t, tt.wantCode, res.Error)
			assert.Nil(t, res.Position)
		})
	}
}

func TestOpenIncreaseBypassesPositionLimit(t *testing.T) {
	existing := &domain.Position{AssetID: "BTC", Quantity: 1, AveragePrice: 100, EntryDate: testTime}
	res := Open(existing, OpenInput{
		AssetID:          "BTC",
		Price:            100,
		Quantity:         ptr(1),
		AvailableCapital: 1000,
		OpenPositions:    DefaultMaxPositions,
	}, SizingConfig{})
	require.True(t, res.Success, "increasing an existing position ignores the count gate")
	assert.Equal(t, 2.0, res.Position.Quantity)
}

func TestOpenSizingPriority(t *testing.T) {
	cfg := SizingConfig{}
	base := OpenInput{
		AssetID:          "ETH",
		Price:            100,
		PortfolioValue:   10000,
		AvailableCapital: 100000,
		Timestamp:        testTime,
	}

	t.Run("explicit quantity wins", func(t *testing.T) {
		in := base
		in.Quantity = ptr(3)
		in.Percentage = ptr(0.5)
		in.Confidence = ptr(1)
		res := Open(nil, in, cfg)
		require.True(t, res.Success)
		assert.Equal(t, 3.0, res.Quantity)
	})

	t.Run("percentage beats confidence", func(t *testing.T) {
		in := base
		in.Percentage = ptr(0.5)
		in.Confidence = ptr(1)
		res := Open(nil, in, cfg)
		require.True(t, res.Success)
		assert.InDelta(t, 0.5*10000/100, res.Quantity, 1e-9)
	})

	t.Run("confidence interpolation", func(t *testing.T) {
		in := base
		in.Confidence = ptr(0.5)
		res := Open(nil, in, cfg)
		require.True(t, res.Success)
		// 0.05 + 0.5*(0.12-0.05) = 0.085 of 10000 at price 100
		assert.InDelta(t, 8.5, res.Quantity, 1e-9)
	})

	t.Run("default minimum allocation", func(t *testing.T) {
		res := Open(nil, base, cfg)
		require.True(t, res.Success)
		assert.InDelta(t, 0.05*10000/100, res.Quantity, 1e-9)
	})
}

func TestOpenCombinesWithExisting(t *testing.T) {
	entry := testTime.Add(-48 * time.Hour)
	existing := &domain.Position{AssetID: "BTC", Quantity: 1, AveragePrice: 100, EntryDate: entry}

	res := Open(existing, OpenInput{
		AssetID:          "BTC",
		Price:            200,
		Quantity:         ptr(1),
		AvailableCapital: 1000,
		Timestamp:        testTime,
	}, SizingConfig{})
	require.True(t, res.Success)
	require.NotNil(t, res.Position)

	assert.Equal(t, 2.0, res.Position.Quantity)
	assert.InDelta(t, 150.0, res.Position.AveragePrice, 1e-9, "volume-weighted mean of 1@100 and 1@200")
	assert.InDelta(t, 400.0, res.Position.TotalValue, 1e-9, "total value at the new price")
	assert.Equal(t, entry, res.Position.EntryDate, "entry date of first opening is preserved")

	// The input position is untouched
	assert.Equal(t, 1.0, existing.Quantity)
	assert.Equal(t, 100.0, existing.AveragePrice)
}

func TestCloseValidation(t *testing.T) {
	pos := &domain.Position{AssetID: "BTC", Quantity: 2, AveragePrice: 100, EntryDate: testTime}

	tests := []struct {
		name     string
		pos      *domain.Position
		in       CloseInput
		wantCode domain.RejectionCode
	}{
		{name: "non-positive price", pos: pos, in: CloseInput{Price: 0}, wantCode: domain.RejectInvalidPrice},
		{name: "nil position", pos: nil, in: CloseInput{Price: 100}, wantCode: domain.RejectNoPosition},
		{name: "flat position", pos: &domain.Position{AssetID: "BTC"}, in: CloseInput{Price: 100}, wantCode: domain.RejectNoPosition},
		{name: "explicit zero quantity", pos: pos, in: CloseInput{Price: 100, Quantity: ptr(0)}, wantCode: domain.RejectZeroQuantity},
		{name: "explicit negative quantity", pos: pos, in: CloseInput{Price: 100, Quantity: ptr(-1)}, wantCode: domain.RejectNegativeQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Close(tt.pos, tt.in, SizingConfig{})
			assert.False(t, res.Success)
			assert.Equal(t, tt.wantCode, res.Error)
		})
	}
}

func TestCloseSizing(t *testing.T) {
	newPos := func() *domain.Position {
		return &domain.Position{AssetID: "BTC", Quantity: 1, AveragePrice: 100, EntryDate: testTime}
	}

	t.Run("explicit quantity capped at held", func(t *testing.T) {
		res := Close(newPos(), CloseInput{Price: 110, Quantity: ptr(5)}, SizingConfig{})
		require.True(t, res.Success)
		assert.Equal(t, 1.0, res.Quantity)
		assert.Nil(t, res.Position)
	})

	t.Run("percentage clamped to one", func(t *testing.T) {
		res := Close(newPos(), CloseInput{Price: 110, Percentage: ptr(1.5)}, SizingConfig{})
		require.True(t, res.Success)
		assert.Equal(t, 1.0, res.Quantity)
		assert.Nil(t, res.Position)
	})

	t.Run("percentage partial", func(t *testing.T) {
		res := Close(newPos(), CloseInput{Price: 110, Percentage: ptr(0.4)}, SizingConfig{})
		require.True(t, res.Success)
		assert.InDelta(t, 0.4, res.Quantity, 1e-9)
		require.NotNil(t, res.Position)
		assert.InDelta(t, 0.6, res.Position.Quantity, 1e-9)
	})

	t.Run("confidence half sells 62.5 percent", func(t *testing.T) {
		res := Close(newPos(), CloseInput{Price: 110, Confidence: ptr(0.5)}, SizingConfig{})
		require.True(t, res.Success)
		assert.InDelta(t, 0.625, res.Quantity, 1e-9)
	})

	t.Run("full close by default", func(t *testing.T) {
		res := Close(newPos(), CloseInput{Price: 110}, SizingConfig{})
		require.True(t, res.Success)
		assert.Equal(t, 1.0, res.Quantity)
		assert.Nil(t, res.Position)
	})
}

func TestClosePnL(t *testing.T) {
	pos := &domain.Position{AssetID: "BTC", Quantity: 5, AveragePrice: 100, EntryDate: testTime}

	res := Close(pos, CloseInput{Price: 110, Quantity: ptr(2)}, SizingConfig{})
	require.True(t, res.Success)
	assert.InDelta(t, 20.0, res.RealizedPnL, 1e-9)
	assert.InDelta(t, 10.0, res.RealizedPnLPercent, 1e-9)
	assert.InDelta(t, 200.0, res.CostBasis, 1e-9)
	assert.InDelta(t, 220.0, res.TotalValue, 1e-9)

	require.NotNil(t, res.Position)
	assert.InDelta(t, 3.0, res.Position.Quantity, 1e-9)
	assert.Equal(t, 100.0, res.Position.AveragePrice, "average price unchanged on partial close")

	// The input position is untouched
	assert.Equal(t, 5.0, pos.Quantity)
}

func TestClosePartialThenRemainderMatchesFullClose(t *testing.T) {
	full := Close(&domain.Position{AssetID: "BTC", Quantity: 4, AveragePrice: 100, EntryDate: testTime},
		CloseInput{Price: 130}, SizingConfig{})
	require.True(t, full.Success)

	first := Close(&domain.Position{AssetID: "BTC", Quantity: 4, AveragePrice: 100, EntryDate: testTime},
		CloseInput{Price: 130, Percentage: ptr(0.35)}, SizingConfig{})
	require.True(t, first.Success)
	require.NotNil(t, first.Position)
	second := Close(first.Position, CloseInput{Price: 130}, SizingConfig{})
	require.True(t, second.Success)
	assert.Nil(t, second.Position)

	assert.InDelta(t, full.RealizedPnL, first.RealizedPnL+second.RealizedPnL, 1e-9)
}

func TestSizeMonotonicInConfidence(t *testing.T) {
	cfg := SizingConfig{}
	prev := -1.0
	for c := 0.0; c <= 1.0; c += 0.05 {
		size := Size(10000, c, 50, cfg)
		assert.GreaterOrEqual(t, size, prev, "size must not decrease as confidence grows")
		prev = size
	}

	// Clamped outside [0,1]
	assert.Equal(t, Size(10000, -5, 50, cfg), Size(10000, 0, 50, cfg))
	assert.Equal(t, Size(10000, 7, 50, cfg), Size(10000, 1, 50, cfg))
}
