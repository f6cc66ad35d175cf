package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/darlinproweb/Barber-project/internal/models"
	"github.com/darlinproweb/Barber-project/internal/notifier"
	"github.com/darlinproweb/Barber-project/internal/queue"
	"github.com/darlinproweb/Barber-project/internal/response"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// StatsCache — опциональный Redis-клиент для кэширования сводки панели.
// nil — кэширование выключено.
var StatsCache *redis.Client

const (
	statsCacheKey = "admin_stats"
	statsCacheTTL = 5 * time.Second
)

type CalledCustomer struct {
	EntryID    uint   `json:"entry_id"`
	CustomerID string `json:"customer_id"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Position   int    `json:"position"`
}

// CallNextHandler вызывает следующего клиента
// @Summary		Вызов следующего клиента
// @Description	Переводит ожидающую запись с минимальной позицией в обслуживание
// @Tags			admin
// @Produce		json
// @Security		BearerAuth
// @Success		200	{object}	CalledCustomer	"Вызванный клиент"
// @Failure		409	{object}	response.ErrorResponse	"Очередь пуста (QUEUE_EMPTY) или клиент уже обслуживается (ALREADY_SERVING)"
// @Failure		503	{object}	response.ErrorResponse	"Хранилище недоступно (STORE_UNAVAILABLE)"
// @Router			/api/admin/call-next [post]
func CallNextHandler(c *gin.Context) {
	entry, err := Engine.CallNext(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, CalledCustomer{
		EntryID:    entry.ID,
		CustomerID: entry.CustomerID,
		Name:       entry.Name,
		Phone:      entry.Phone,
		Position:   entry.Position,
	})
}

type CompleteServiceRequest struct {
	EntryID         uint `json:"entry_id" binding:"required"`
	DurationMinutes int  `json:"duration_minutes"`
}

// CompleteServiceHandler завершает обслуживание
// @Summary		Завершение обслуживания
// @Description	Переводит запись из обслуживания в completed и перенумеровывает очередь
// @Tags			admin
// @Accept			json
// @Produce		json
// @Security		BearerAuth
// @Param			request	body		CompleteServiceRequest	true	"Запись и фактическая длительность"
// @Success		200	{object}	response.SuccessResponse	"Обслуживание завершено"
// @Failure		404	{object}	response.ErrorResponse	"Запись не найдена (NOT_FOUND)"
// @Failure		409	{object}	response.ErrorResponse	"Запись не в обслуживании (INVALID_STATE)"
// @Router			/api/admin/complete [post]
func CompleteServiceHandler(c *gin.Context) {
	var req CompleteServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Ошибка валидации данных",
			Details: err.Error(),
		})
		return
	}

	if _, err := Engine.CompleteService(c.Request.Context(), req.EntryID, req.DurationMinutes); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Обслуживание завершено"})
}

type CancelEntryRequest struct {
	EntryID uint `json:"entry_id" binding:"required"`
}

// CancelEntryHandler отменяет ожидающую запись
// @Summary		Отмена записи оператором
// @Description	Отменяет ожидающую запись и перенумеровывает очередь
// @Tags			admin
// @Accept			json
// @Produce		json
// @Security		BearerAuth
// @Param			request	body		CancelEntryRequest	true	"Идентификатор записи"
// @Success		200	{object}	response.SuccessResponse	"Запись отменена"
// @Failure		404	{object}	response.ErrorResponse	"Запись не найдена (NOT_FOUND)"
// @Failure		409	{object}	response.ErrorResponse	"Запись не в ожидании (INVALID_STATE)"
// @Router			/api/admin/cancel [post]
func CancelEntryHandler(c *gin.Context) {
	var req CancelEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Ошибка валидации данных",
			Details: err.Error(),
		})
		return
	}

	if _, err := Engine.CancelEntry(c.Request.Context(), req.EntryID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Запись отменена"})
}

type WalkInRequest struct {
	Name                    string `json:"name" binding:"required"`
	Phone                   string `json:"phone"`
	EstimatedServiceMinutes int    `json:"estimated_service_minutes"`
}

// WalkInHandler добавляет клиента, пришедшего без записи
// @Summary		Добавление walk-in клиента
// @Description	Барбер добавляет клиента на месте; телефон необязателен
// @Tags			admin
// @Accept			json
// @Produce		json
// @Security		BearerAuth
// @Param			entry	body		WalkInRequest	true	"Данные клиента"
// @Success		201	{object}	JoinQueueResponse	"Клиент добавлен"
// @Failure		400	{object}	response.ErrorResponse	"Ошибка валидации (VALIDATION_ERROR)"
// @Router			/api/admin/walkin [post]
func WalkInHandler(c *gin.Context) {
	var req WalkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Ошибка валидации данных",
			Details: err.Error(),
		})
		return
	}

	entry, err := Engine.Admit(c.Request.Context(), queue.AdmitRequest{
		Name:                    req.Name,
		Phone:                   req.Phone,
		EstimatedServiceMinutes: req.EstimatedServiceMinutes,
		IsWalkIn:                true,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, JoinQueueResponse{
		CustomerID: entry.CustomerID,
		Position:   entry.Position,
		Message:    "Клиент добавлен в очередь",
	})
}

type AdminQueueResponse struct {
	Total   int                 `json:"total"`
	Entries []models.QueueEntry `json:"entries"`
}

// AdminQueueHandler возвращает полный активный список
// @Summary		Очередь для панели барбера
// @Description	Возвращает все активные записи со всеми полями
// @Tags			admin
// @Produce		json
// @Security		BearerAuth
// @Success		200	{object}	AdminQueueResponse	"Активные записи"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/admin/queue [get]
func AdminQueueHandler(c *gin.Context) {
	entries, err := Engine.Store().SelectActive(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, AdminQueueResponse{Total: len(entries), Entries: entries})
}

// AdminStatsHandler возвращает сводку панели
// @Summary		Сводка панели барбера
// @Description	Размер очереди, обслужено за день, средняя длительность и общая оценка ожидания
// @Tags			admin
// @Produce		json
// @Security		BearerAuth
// @Success		200	{object}	notifier.Stats	"Сводка"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/admin/stats [get]
func AdminStatsHandler(c *gin.Context) {
	ctx := c.Request.Context()

	// Проверка кэша
	if StatsCache != nil {
		if cached, err := StatsCache.Get(ctx, statsCacheKey).Result(); err == nil && cached != "" {
			var stats notifier.Stats
			if err := json.Unmarshal([]byte(cached), &stats); err == nil {
				c.JSON(http.StatusOK, stats)
				return
			}
		}
	}

	stats, err := Metrics.Stats(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	if StatsCache != nil {
		if raw, err := json.Marshal(stats); err == nil {
			StatsCache.Set(ctx, statsCacheKey, raw, statsCacheTTL)
		}
	}

	c.JSON(http.StatusOK, stats)
}
