package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/darlinproweb/Barber-project/internal/notifier"
	"github.com/darlinproweb/Barber-project/internal/queue"
	"github.com/darlinproweb/Barber-project/internal/ratelimit"
	"github.com/darlinproweb/Barber-project/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hubOnce sync.Once

// AuthMiddlewareTest подменяет проверку токена: любой запрос — от барбера 1.
func AuthMiddlewareTest() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("barberID", uint(1))
		c.Next()
	}
}

func setupTestServer(limiter ratelimit.Limiter) (*httptest.Server, *queue.MemStore) {
	gin.SetMode(gin.TestMode)

	store := queue.NewMemStore()
	hubOnce.Do(func() { go ws.HubInstance.Run() })
	metrics := notifier.New(store, ws.HubInstance)
	engine := queue.NewEngine(store, metrics, 0)

	if limiter == nil {
		limiter = ratelimit.NewMemoryLimiter(time.Minute, 1000)
	}
	Setup(engine, metrics, limiter)
	StatsCache = nil

	r := gin.New()

	public := r.Group("/api/queue")
	{
		public.POST("/join", JoinQueueHandler)
		public.GET("/position/:customer_id", QueuePositionHandler)
		public.POST("/cancel", CancelByCustomerHandler)
		public.GET("/status", QueueStatusHandler)
		public.GET("/ws", ws.QueueWebSocketHandler)
	}

	admin := r.Group("/api/admin", AuthMiddlewareTest())
	{
		admin.POST("/call-next", CallNextHandler)
		admin.POST("/complete", CompleteServiceHandler)
		admin.POST("/cancel", CancelEntryHandler)
		admin.POST("/walkin", WalkInHandler)
		admin.GET("/queue", AdminQueueHandler)
		admin.GET("/stats", AdminStatsHandler)
	}

	return httptest.NewServer(r), store
}

func postJSON(t *testing.T, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	res, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer res.Body.Close()

	var decoded map[string]interface{}
	_ = json.NewDecoder(res.Body).Decode(&decoded)
	return res, decoded
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]interface{}) {
	t.Helper()
	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()

	var decoded map[string]interface{}
	_ = json.NewDecoder(res.Body).Decode(&decoded)
	return res, decoded
}

func TestQueueFlow(t *testing.T) {
	ts, _ := setupTestServer(nil)
	defer ts.Close()

	// 1. Двое клиентов вступают в очередь.
	res, join1 := postJSON(t, ts.URL+"/api/queue/join", gin.H{"name": "Ана", "phone": "555-0001"})
	require.Equal(t, http.StatusCreated, res.StatusCode, "Первый клиент не смог вступить")
	assert.Equal(t, float64(1), join1["position"])
	customer1 := join1["customer_id"].(string)

	res, join2 := postJSON(t, ts.URL+"/api/queue/join", gin.H{"name": "Бо", "phone": "555-0002"})
	require.Equal(t, http.StatusCreated, res.StatusCode, "Второй клиент не смог вступить")
	assert.Equal(t, float64(2), join2["position"])
	customer2 := join2["customer_id"].(string)

	// 2. Публичный снимок очереди.
	res, status := getJSON(t, ts.URL+"/api/queue/status")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, float64(2), status["total"])

	// 3. Персональный статус второго клиента.
	res, pos := getJSON(t, ts.URL+"/api/queue/position/"+customer2)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "waiting", pos["status"])
	assert.Equal(t, float64(2), pos["position"])
	assert.Equal(t, float64(1), pos["people_ahead"])
	assert.Equal(t, float64(15), pos["estimated_wait_minutes"], "Ожидание: один впереди на 15 минут по умолчанию")

	// 4. Подключаемся к WS до вызова клиента.
	wsURL := "ws" + ts.URL[4:] + "/api/queue/ws"
	wsConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "Ошибка подключения к WS")
	defer wsConn.Close()
	time.Sleep(100 * time.Millisecond) // ждём регистрацию клиента в хабе

	// 5. Барбер вызывает следующего.
	res, called := postJSON(t, ts.URL+"/api/admin/call-next", gin.H{})
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, customer1, called["customer_id"], "Вызван должен быть первый клиент")
	entryID := uint(called["entry_id"].(float64))

	// WS-сообщение о вызове.
	wsConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, wsMessage, err := wsConn.ReadMessage()
	require.NoError(t, err, "Ошибка чтения WS сообщения")
	var event map[string]interface{}
	require.NoError(t, json.Unmarshal(wsMessage, &event))
	assert.Equal(t, "customer_called", event["event_type"])
	assert.Equal(t, "in_service", event["status"])

	// 6. Повторный вызов до завершения — ALREADY_SERVING.
	res, conflict := postJSON(t, ts.URL+"/api/admin/call-next", gin.H{})
	require.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "ALREADY_SERVING", conflict["code"])

	// 7. Завершаем обслуживание.
	res, _ = postJSON(t, ts.URL+"/api/admin/complete", gin.H{"entry_id": entryID, "duration_minutes": 20})
	require.Equal(t, http.StatusOK, res.StatusCode)

	// 8. Второй клиент поднялся на позицию 1.
	res, pos = getJSON(t, ts.URL+"/api/queue/position/"+customer2)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, float64(1), pos["position"])

	// 9. Сводка панели.
	res, stats := getJSON(t, ts.URL+"/api/admin/stats")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, float64(1), stats["total_in_queue"])
	assert.Equal(t, float64(1), stats["total_served_today"])
	assert.Equal(t, float64(20), stats["avg_service_time"])

	// 10. Второй клиент отменяет запись сам.
	res, _ = postJSON(t, ts.URL+"/api/queue/cancel", gin.H{"customer_id": customer2})
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, status = getJSON(t, ts.URL+"/api/queue/status")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, float64(0), status["total"], "Очередь должна опустеть")
}

func TestJoinValidationError(t *testing.T) {
	ts, _ := setupTestServer(nil)
	defer ts.Close()

	res, body := postJSON(t, ts.URL+"/api/queue/join", gin.H{"name": "А", "phone": "555-0001"})
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])
}

func TestCallNextOnEmptyQueue(t *testing.T) {
	ts, _ := setupTestServer(nil)
	defer ts.Close()

	res, body := postJSON(t, ts.URL+"/api/admin/call-next", gin.H{})
	require.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Equal(t, "QUEUE_EMPTY", body["code"])
}

func TestWalkInAdmission(t *testing.T) {
	ts, _ := setupTestServer(nil)
	defer ts.Close()

	res, body := postJSON(t, ts.URL+"/api/admin/walkin", gin.H{"name": "Гость"})
	require.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, float64(1), body["position"])
	assert.Contains(t, body["customer_id"], "walkin_")
}

func TestCancelByCustomerUnknownID(t *testing.T) {
	ts, _ := setupTestServer(nil)
	defer ts.Close()

	// Неизвестный customer_id — успех без утечки информации.
	res, _ := postJSON(t, ts.URL+"/api/queue/cancel", gin.H{"customer_id": "customer_000_missing"})
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestPositionUnknownCustomer(t *testing.T) {
	ts, _ := setupTestServer(nil)
	defer ts.Close()

	res, body := getJSON(t, ts.URL+"/api/queue/position/customer_000_missing")
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestJoinRateLimited(t *testing.T) {
	ts, _ := setupTestServer(ratelimit.NewMemoryLimiter(time.Minute, 2))
	defer ts.Close()

	for i := 0; i < 2; i++ {
		res, _ := postJSON(t, ts.URL+"/api/queue/join", gin.H{
			"name":  "Клиент",
			"phone": fmt.Sprintf("555-00%02d", i),
		})
		require.Equal(t, http.StatusCreated, res.StatusCode)
	}

	res, body := postJSON(t, ts.URL+"/api/queue/join", gin.H{"name": "Клиент", "phone": "555-0099"})
	require.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	assert.Equal(t, "RATE_LIMITED", body["code"])
}
