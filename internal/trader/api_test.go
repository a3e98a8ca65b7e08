package trader

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAPIServer_Handlers(t *testing.T) {
	env := setupEngine(t, testTradingConfig(), testParams())
	openPosition(t, env, 10, 95)
	api := NewAPIServer(env.engine, 0, env.registry, zap.NewNop())

	t.Run("Health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK\n", rec.Body.String())
	})

	t.Run("Status", func(t *testing.T) {
		// Act
		rec := httptest.NewRecorder()
		api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

		// Assert
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body statusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, env.engine.UUID, body.UUID)
		assert.Equal(t, "dip-BNBBTC-1h", body.Name)
		assert.Equal(t, "in_position", body.State)
		assert.Equal(t, testParams(), body.Params)
		require.NotNil(t, body.Position)
		assert.Equal(t, int64(10), body.Position.Quantity)
		assert.Equal(t, 95.0, body.Position.EntryPrice)
		assert.Nil(t, body.LastSignal)
	})

	t.Run("Metrics", func(t *testing.T) {
		env.engine.metrics.inPosition.Set(1)

		rec := httptest.NewRecorder()
		api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "bot_in_position 1")
	})
}
