package trader

import (
	"context"
	"errors"
	"testing"
	"time"

	"binance-dip-bot-go/internal/indicator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestScanner(gw *MockGateway) *Scanner {
	return NewScanner(gw, testParams(), "BTC", time.Second, 32*time.Second)
}

func TestBackoff_Sawtooth(t *testing.T) {
	// Arrange
	b := NewBackoff(time.Second, 32*time.Second)
	var got []time.Duration

	// Act
	for i := 0; i < 13; i++ {
		got = append(got, b.Next())
	}

	// Assert
	s := time.Second
	assert.Equal(t, []time.Duration{1 * s, 2 * s, 4 * s, 8 * s, 16 * s, 32 * s, 1 * s, 2 * s, 4 * s, 8 * s, 16 * s, 32 * s, 1 * s}, got)
}

func TestScanner_ScanOnce_EntryThreshold(t *testing.T) {
	testCases := []struct {
		name      string
		price     float64
		wantDiff  float64
		triggered bool
	}{
		{"AtThreshold", 96, -4.00, true},
		{"JustAboveThreshold", 96.01, -3.99, false},
		{"WellBelowBand", 95, -5.00, true},
		{"OnTheBand", 100, 0, false},
		{"AboveBand", 103, 3.00, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			gw := new(MockGateway)
			gw.On("GetRecentCloses", mock.Anything, "BNBBTC", "1h", 25).Return(flatCloses(25, 100), nil)
			gw.On("GetCurrentPrice", mock.Anything, "BNBBTC").Return(tc.price, nil)
			gw.On("GetBalance", mock.Anything, "BTC").Return(2.5, nil)
			scanner := newTestScanner(gw)

			// Act
			status, err := scanner.ScanOnce(context.Background())

			// Assert
			require.NoError(t, err)
			assert.Equal(t, 100.0, status.LowerBand)
			assert.Equal(t, tc.price, status.CurrentPrice)
			assert.Equal(t, tc.wantDiff, status.PercentDiff)
			assert.Equal(t, tc.triggered, status.Triggered)
			assert.Equal(t, 2.5, status.Balance)
		})
	}
}

func TestScanner_ScanOnce_Errors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("Klines", func(t *testing.T) {
		gw := new(MockGateway)
		gw.On("GetRecentCloses", mock.Anything, "BNBBTC", "1h", 25).Return(([]float64)(nil), boom)

		_, err := newTestScanner(gw).ScanOnce(context.Background())

		var fetchErr *DataFetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.Equal(t, "klines", fetchErr.Op)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("Price", func(t *testing.T) {
		gw := new(MockGateway)
		gw.On("GetRecentCloses", mock.Anything, "BNBBTC", "1h", 25).Return(flatCloses(25, 100), nil)
		gw.On("GetCurrentPrice", mock.Anything, "BNBBTC").Return(0.0, boom)

		_, err := newTestScanner(gw).ScanOnce(context.Background())

		var fetchErr *DataFetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.Equal(t, "price", fetchErr.Op)
	})

	t.Run("Balance", func(t *testing.T) {
		gw := new(MockGateway)
		gw.On("GetRecentCloses", mock.Anything, "BNBBTC", "1h", 25).Return(flatCloses(25, 100), nil)
		gw.On("GetCurrentPrice", mock.Anything, "BNBBTC").Return(95.0, nil)
		gw.On("GetBalance", mock.Anything, "BTC").Return(0.0, boom)

		_, err := newTestScanner(gw).ScanOnce(context.Background())

		var fetchErr *DataFetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.Equal(t, "balance", fetchErr.Op)
	})

	t.Run("InsufficientData", func(t *testing.T) {
		gw := new(MockGateway)
		gw.On("GetRecentCloses", mock.Anything, "BNBBTC", "1h", 25).Return(flatCloses(19, 100), nil)

		_, err := newTestScanner(gw).ScanOnce(context.Background())

		assert.ErrorIs(t, err, indicator.ErrInsufficientData)
		gw.AssertNotCalled(t, "GetCurrentPrice", mock.Anything, mock.Anything)
	})

	t.Run("NonPositiveLowerBand", func(t *testing.T) {
		gw := new(MockGateway)
		closes := make([]float64, 20)
		for i := range closes {
			closes[i] = float64(1 + 2*(i%2))
		}
		gw.On("GetRecentCloses", mock.Anything, "BNBBTC", "1h", 25).Return(closes, nil)
		gw.On("GetCurrentPrice", mock.Anything, "BNBBTC").Return(1.0, nil)
		gw.On("GetBalance", mock.Anything, "BTC").Return(1.0, nil)

		_, err := newTestScanner(gw).ScanOnce(context.Background())

		assert.Error(t, err)
	})
}

func TestScanner_Wait_ReturnsOnCancel(t *testing.T) {
	// Arrange
	scanner := newTestScanner(new(MockGateway))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Act
	start := time.Now()
	err := scanner.Wait(ctx)

	// Assert
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, 2*time.Second, scanner.backoff.Current())
}

func TestShouldEnter(t *testing.T) {
	assert.True(t, ShouldEnter(-4.00))
	assert.True(t, ShouldEnter(-10))
	assert.False(t, ShouldEnter(-3.99))
	assert.False(t, ShouldEnter(0))
}
