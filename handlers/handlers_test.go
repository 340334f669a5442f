package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"leakwatch-api/config"
	"leakwatch-api/database"
	"leakwatch-api/models"
	"leakwatch-api/services"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testAPI struct {
	db        *gorm.DB
	router    *gin.Engine
	relay     *services.MockRelayClient
	predictor *services.MockPredictor
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	return newTestAPIWithCache(t, services.NewCacheServiceFromClient(nil))
}

func newTestAPIWithCache(t *testing.T, cache *services.CacheService) *testAPI {
	t.Helper()
	dsn := "file:handlers_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(context.Background(), db))
	t.Cleanup(func() { _ = database.Close(db) })

	ctrl := gomock.NewController(t)
	relay := services.NewMockRelayClient(ctrl)
	predictor := services.NewMockPredictor(ctrl)

	cfg := &config.Config{
		CORS:     config.CORSConfig{AllowedOrigins: "*"},
		Alerting: config.AlertingConfig{FeedLimit: services.DefaultAlertFeedLimit},
	}
	router := NewRouter(cfg, Deps{
		DB:        db,
		Cache:     cache,
		Ingest:    services.NewIngestService(db, services.WithPublisher(cache)),
		Query:     services.NewQueryService(db),
		Alerts:    services.NewAlertService(db),
		Pump:      services.NewPumpService(db, relay, cache),
		Trends:    services.NewTrendService(db),
		Predictor: predictor,
	})

	return &testAPI{db: db, router: router, relay: relay, predictor: predictor}
}

func (a *testAPI) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "UP", body["status"])
	assert.Equal(t, false, body["cache"])
}

func TestIngestEndpoint(t *testing.T) {
	t.Run("leak creates alert", func(t *testing.T) {
		api := newTestAPI(t)

		w := api.do(http.MethodPost, "/api/sensor-readings", `{"flow_rate_1":10,"flow_rate_2":5,"leakage_1":1,"leakage_2":0}`)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		body := decode(t, w)
		assert.Equal(t, "Sensor data and alerts processed successfully", body["message"])
		assert.EqualValues(t, 1, body["alerts_created"])
	})

	t.Run("no leak creates no alert", func(t *testing.T) {
		api := newTestAPI(t)

		w := api.do(http.MethodPost, "/api/sensor-readings", `{"flow_rate_1":10,"flow_rate_2":9.5,"leakage_1":0,"leakage_2":0}`)
		require.Equal(t, http.StatusCreated, w.Code)
		body := decode(t, w)
		assert.Equal(t, "Sensor data inserted successfully, no alerts", body["message"])
		assert.EqualValues(t, 0, body["alerts_created"])
	})

	t.Run("missing field is a validation error", func(t *testing.T) {
		api := newTestAPI(t)

		w := api.do(http.MethodPost, "/api/sensor-readings", `{"flow_rate_1":10,"flow_rate_2":5,"leakage_1":0}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "leakage_2", decode(t, w)["field"])

		var n int64
		require.NoError(t, api.db.Model(&models.SensorReading{}).Count(&n).Error)
		assert.Zero(t, n)
	})

	t.Run("malformed body", func(t *testing.T) {
		api := newTestAPI(t)

		w := api.do(http.MethodPost, "/api/sensor-readings", `{nope`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("alert failure reports readings recorded", func(t *testing.T) {
		api := newTestAPI(t)
		require.NoError(t, api.db.Migrator().DropTable(&models.Alert{}))

		w := api.do(http.MethodPost, "/api/sensor-readings", `{"flow_rate_1":10,"flow_rate_2":5,"leakage_1":1,"leakage_2":1}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, true, decode(t, w)["readings_recorded"])
	})
}

func TestSnapshotAndAnalytics(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodPost, "/api/sensor-readings", `{"flow_rate_1":12.5,"flow_rate_2":11,"leakage_1":0,"leakage_2":1}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = api.do(http.MethodGet, "/api/sensor-readings", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap models.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, models.Snapshot{FlowRate1: 12.5, FlowRate2: 11, Leakage1: 0, Leakage2: 1}, snap)

	w = api.do(http.MethodGet, "/api/analytics", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats []models.SensorStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Len(t, stats, 4)

	w = api.do(http.MethodGet, "/api/sensor-historical", "")
	require.Equal(t, http.StatusOK, w.Code)
	var history []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Len(t, history, 4)
}

func TestAlertsEndpoints(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodPost, "/api/sensor-readings", `{"flow_rate_1":10,"flow_rate_2":5,"leakage_1":1,"leakage_2":1}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = api.do(http.MethodGet, "/api/alerts", "")
	require.Equal(t, http.StatusOK, w.Code)
	var alerts []models.Alert
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &alerts))
	require.Len(t, alerts, 2)

	w = api.do(http.MethodPost, "/api/resolve-alert", `{"alert_id":`+jsonUint(alerts[0].AlertID)+`}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Alert resolved successfully", decode(t, w)["message"])

	w = api.do(http.MethodGet, "/api/alerts", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &alerts))
	assert.Len(t, alerts, 1)

	t.Run("unknown id", func(t *testing.T) {
		w := api.do(http.MethodPost, "/api/resolve-alert", `{"alert_id":9999}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing id", func(t *testing.T) {
		w := api.do(http.MethodPost, "/api/resolve-alert", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("zero id", func(t *testing.T) {
		w := api.do(http.MethodPost, "/api/resolve-alert", `{"alert_id":0}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func jsonUint(v uint) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestPumpEndpoints(t *testing.T) {
	t.Run("defaults to OFF", func(t *testing.T) {
		api := newTestAPI(t)

		w := api.do(http.MethodGet, "/api/pump-status", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "OFF", decode(t, w)["status"])
	})

	t.Run("set forwards to relay", func(t *testing.T) {
		api := newTestAPI(t)
		api.relay.EXPECT().SendRelayCommand(gomock.Any(), "ON").Return(nil)

		w := api.do(http.MethodPost, "/api/pump-status", `{"status":"ON"}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Pump status updated successfully", decode(t, w)["message"])

		w = api.do(http.MethodGet, "/api/pump-status", "")
		assert.Equal(t, "ON", decode(t, w)["status"])
	})

	t.Run("relay failure keeps the record", func(t *testing.T) {
		api := newTestAPI(t)
		api.relay.EXPECT().SendRelayCommand(gomock.Any(), "OFF").Return(errors.New("connection refused"))

		w := api.do(http.MethodPost, "/api/pump-status", `{"status":"OFF"}`)
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, true, decode(t, w)["status_recorded"])

		var n int64
		require.NoError(t, api.db.Model(&models.PumpCommand{}).Count(&n).Error)
		assert.EqualValues(t, 1, n)
	})

	t.Run("invalid status", func(t *testing.T) {
		api := newTestAPI(t)

		w := api.do(http.MethodPost, "/api/pump-status", `{"status":"on"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Invalid status value. Must be ON or OFF.", decode(t, w)["error"])
	})

	t.Run("legacy relay status records without forwarding", func(t *testing.T) {
		api := newTestAPI(t)

		w := api.do(http.MethodPost, "/api/relay-status", `{"status":"ON"}`)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Relay status updated successfully.", w.Body.String())

		w = api.do(http.MethodPost, "/api/relay-status", `{"status":"MAYBE"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Invalid status value.", w.Body.String())
	})

	t.Run("legacy relay status rejects malformed body", func(t *testing.T) {
		api := newTestAPI(t)

		for _, body := range []string{`{"status":`, `{"status":1}`, `["ON"]`} {
			w := api.do(http.MethodPost, "/api/relay-status", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, body)
			assert.Equal(t, "Invalid status value.", w.Body.String(), body)
		}

		var n int64
		require.NoError(t, api.db.Model(&models.PumpCommand{}).Count(&n).Error)
		assert.Zero(t, n)
	})
}

func TestPredictionEndpoints(t *testing.T) {
	t.Run("predictor output passed through", func(t *testing.T) {
		api := newTestAPI(t)
		api.predictor.EXPECT().PredictLeak(gomock.Any()).Return("Leak probability: 0.12", nil)

		w := api.do(http.MethodGet, "/api/predict-leak", "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Leak probability: 0.12", w.Body.String())
	})

	t.Run("predictor failure", func(t *testing.T) {
		api := newTestAPI(t)
		api.predictor.EXPECT().PredictLeak(gomock.Any()).Return("", errors.New("exit status 1"))

		w := api.do(http.MethodGet, "/api/predict-leak", "")
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Equal(t, "Error running prediction", w.Body.String())
	})

	t.Run("flow trend without data", func(t *testing.T) {
		api := newTestAPI(t)

		w := api.do(http.MethodGet, "/api/analytics/flow-rate", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "No data available for flow rate sensors.", decode(t, w)["message"])
	})

	t.Run("leakage trend", func(t *testing.T) {
		api := newTestAPI(t)
		require.Equal(t, http.StatusCreated,
			api.do(http.MethodPost, "/api/sensor-readings", `{"flow_rate_1":10,"flow_rate_2":9,"leakage_1":1,"leakage_2":0}`).Code)

		w := api.do(http.MethodGet, "/api/analytics/leakage", "")
		require.Equal(t, http.StatusOK, w.Code)
		var report models.TrendReport
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
		assert.Len(t, report.Timestamps, 1)
		require.NotNil(t, report.LastLeakage)
		assert.Equal(t, 1.0, report.LastLeakage.Leakage1)
	})
}

func TestSensorsAndLive(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodGet, "/api/sensors", "")
	require.Equal(t, http.StatusOK, w.Code)
	var sensors []models.Sensor
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sensors))
	assert.Len(t, sensors, len(models.DefaultSensors))

	w = api.do(http.MethodGet, "/api/live", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// slowSetHook delays every SET so background cache writes land late.
type slowSetHook struct {
	delay time.Duration
}

func (slowSetHook) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h slowSetHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "set" {
			time.Sleep(h.delay)
		}
		return next(ctx, cmd)
	}
}

func (slowSetHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func newRedisTestAPI(t *testing.T, setDelay time.Duration) (*testAPI, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	if setDelay > 0 {
		client.AddHook(slowSetHook{delay: setDelay})
	}
	t.Cleanup(func() { _ = client.Close() })
	return newTestAPIWithCache(t, services.NewCacheServiceFromClient(client)), mr
}

func getSnapshot(t *testing.T, api *testAPI) models.Snapshot {
	t.Helper()
	w := api.do(http.MethodGet, "/api/sensor-readings", "")
	require.Equal(t, http.StatusOK, w.Code)
	var snap models.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	return snap
}

func TestSnapshotCacheNotStaleAfterConcurrentIngest(t *testing.T) {
	api, mr := newRedisTestAPI(t, 100*time.Millisecond)

	require.Equal(t, http.StatusCreated,
		api.do(http.MethodPost, "/api/sensor-readings", `{"flow_rate_1":1,"flow_rate_2":1,"leakage_1":0,"leakage_2":0}`).Code)
	assert.Equal(t, models.Snapshot{FlowRate1: 1, FlowRate2: 1}, getSnapshot(t, api))

	// The cache write from the read above is still in flight when the next
	// batch is stored.
	require.Equal(t, http.StatusCreated,
		api.do(http.MethodPost, "/api/sensor-readings", `{"flow_rate_1":9,"flow_rate_2":2,"leakage_1":1,"leakage_2":0}`).Code)
	time.Sleep(300 * time.Millisecond)

	want := models.Snapshot{FlowRate1: 9, FlowRate2: 2, Leakage1: 1}
	assert.Equal(t, want, getSnapshot(t, api))

	// The fresh snapshot is cached under the new generation and served from it.
	gen, err := mr.Get("leakwatch:cache:generation")
	require.NoError(t, err)
	assert.Equal(t, "2", gen)
	time.Sleep(300 * time.Millisecond)
	assert.True(t, mr.Exists(services.VersionedKey(services.SnapshotCacheKey, 2)))
	assert.Equal(t, want, getSnapshot(t, api))
}

func TestAnalyticsCacheNotStaleAfterIngest(t *testing.T) {
	api, _ := newRedisTestAPI(t, 0)

	require.Equal(t, http.StatusCreated,
		api.do(http.MethodPost, "/api/sensor-readings", `{"flow_rate_1":4,"flow_rate_2":4,"leakage_1":0,"leakage_2":0}`).Code)

	readStats := func() map[uint]models.SensorStats {
		w := api.do(http.MethodGet, "/api/analytics", "")
		require.Equal(t, http.StatusOK, w.Code)
		var stats []models.SensorStats
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
		out := map[uint]models.SensorStats{}
		for _, s := range stats {
			out[s.SensorID] = s
		}
		return out
	}

	assert.Equal(t, 4.0, readStats()[models.SensorFlow1].Max)
	time.Sleep(50 * time.Millisecond)

	require.Equal(t, http.StatusCreated,
		api.do(http.MethodPost, "/api/sensor-readings", `{"flow_rate_1":8,"flow_rate_2":4,"leakage_1":0,"leakage_2":0}`).Code)
	assert.Equal(t, 8.0, readStats()[models.SensorFlow1].Max)
}
