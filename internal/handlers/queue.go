package handlers

import (
	"net/http"

	"github.com/darlinproweb/Barber-project/internal/queue"
	"github.com/darlinproweb/Barber-project/internal/response"
	"github.com/gin-gonic/gin"
)

type JoinQueueRequest struct {
	Name                    string `json:"name" binding:"required"`
	Phone                   string `json:"phone" binding:"required"`
	EstimatedServiceMinutes int    `json:"estimated_service_minutes"`
	// CustomerID заполняется только при повторной отправке той же заявки.
	CustomerID string `json:"customer_id"`
}

type JoinQueueResponse struct {
	CustomerID string `json:"customer_id"`
	Position   int    `json:"position"`
	Message    string `json:"message"`
}

// JoinQueueHandler обрабатывает вступление удаленного клиента в очередь
// @Summary		Вступление в очередь
// @Description	Добавляет клиента в очередь и уведомляет подписчиков
// @Tags			queue
// @Accept			json
// @Produce		json
// @Param			entry	body		JoinQueueRequest	true	"Данные клиента"
// @Success		201		{object}	JoinQueueResponse	"Успешное вступление с назначенной позицией"
// @Failure		400		{object}	response.ErrorResponse	"Ошибка валидации (VALIDATION_ERROR)"
// @Failure		409		{object}	response.ErrorResponse	"Клиент уже в очереди (DUPLICATE_CUSTOMER)"
// @Failure		429		{object}	response.ErrorResponse	"Превышен лимит запросов (RATE_LIMITED)"
// @Failure		503		{object}	response.ErrorResponse	"Хранилище недоступно (STORE_UNAVAILABLE)"
// @Router			/api/queue/join [post]
func JoinQueueHandler(c *gin.Context) {
	if !allowRequest(c) {
		return
	}

	var req JoinQueueRequest
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
		CustomerID:              req.CustomerID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, JoinQueueResponse{
		CustomerID: entry.CustomerID,
		Position:   entry.Position,
		Message:    "Вы записаны в очередь",
	})
}

// QueuePositionHandler возвращает персональный статус клиента
// @Summary		Позиция клиента в очереди
// @Description	Возвращает статус, позицию, число людей впереди и персональную оценку ожидания
// @Tags			queue
// @Accept			json
// @Produce		json
// @Param			customer_id	path		string	true	"Идентификатор клиента"
// @Success		200	{object}	notifier.PositionInfo	"Текущий статус клиента"
// @Failure		404	{object}	response.ErrorResponse	"Клиент не найден (NOT_FOUND)"
// @Router			/api/queue/position/{customer_id} [get]
func QueuePositionHandler(c *gin.Context) {
	customerID := c.Param("customer_id")
	if customerID == "" || len(customerID) > 100 {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Неверный идентификатор клиента",
		})
		return
	}

	entry, err := Engine.Store().LatestByCustomerID(c.Request.Context(), customerID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Metrics.Position(c.Request.Context(), entry))
}

type CancelByCustomerRequest struct {
	CustomerID string `json:"customer_id" binding:"required"`
}

// CancelByCustomerHandler — самостоятельная отмена записи клиентом
// @Summary		Отмена записи клиентом
// @Description	Отменяет активную запись по идентификатору клиента; отсутствие записи не считается ошибкой
// @Tags			queue
// @Accept			json
// @Produce		json
// @Param			request	body		CancelByCustomerRequest	true	"Идентификатор клиента"
// @Success		200	{object}	response.SuccessResponse	"Запись отменена либо нечего отменять"
// @Failure		409	{object}	response.ErrorResponse	"Клиент уже обслуживается (INVALID_STATE)"
// @Router			/api/queue/cancel [post]
func CancelByCustomerHandler(c *gin.Context) {
	if !allowRequest(c) {
		return
	}

	var req CancelByCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Ошибка валидации данных",
			Details: err.Error(),
		})
		return
	}

	if _, err := Engine.CancelByCustomer(c.Request.Context(), req.CustomerID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessResponse{Message: "Запись отменена"})
}

// PublicEntry — видимая всем часть записи очереди.
type PublicEntry struct {
	Position int    `json:"position"`
	Name     string `json:"name"`
	Status   string `json:"status"`
}

type QueueStatusResponse struct {
	Total   int           `json:"total"`
	Entries []PublicEntry `json:"entries"`
}

// QueueStatusHandler возвращает публичный снимок очереди
// @Summary		Состояние очереди
// @Description	Возвращает активные записи с позициями (без телефонов)
// @Tags			queue
// @Produce		json
// @Success		200	{object}	QueueStatusResponse	"Снимок очереди"
// @Failure		500	{object}	response.ErrorResponse	"Ошибка сервера (DB_ERROR)"
// @Router			/api/queue/status [get]
func QueueStatusHandler(c *gin.Context) {
	entries, err := Engine.Store().SelectActive(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	public := make([]PublicEntry, 0, len(entries))
	for _, e := range entries {
		public = append(public, PublicEntry{
			Position: e.Position,
			Name:     e.Name,
			Status:   e.Status,
		})
	}

	c.JSON(http.StatusOK, QueueStatusResponse{Total: len(public), Entries: public})
}

// allowRequest применяет лимит запросов по адресу вызывающего.
func allowRequest(c *gin.Context) bool {
	if Limiter == nil {
		return true
	}
	ok, _ := Limiter.Allow(c.Request.Context(), c.ClientIP())
	if !ok {
		c.JSON(http.StatusTooManyRequests, response.ErrorResponse{
			Code:    "RATE_LIMITED",
			Message: "Слишком много запросов, попробуйте позже",
		})
		return false
	}
	return true
}
