package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/darlinproweb/Barber-project/internal/notifier"
	"github.com/darlinproweb/Barber-project/internal/queue"
	"github.com/darlinproweb/Barber-project/internal/ratelimit"
	"github.com/darlinproweb/Barber-project/internal/response"
	"github.com/gin-gonic/gin"
)

// Зависимости обработчиков, задаются один раз при старте.
var (
	Engine  *queue.Engine
	Metrics *notifier.Notifier
	Limiter ratelimit.Limiter
)

// Setup связывает обработчики с ядром очереди.
func Setup(engine *queue.Engine, metrics *notifier.Notifier, limiter ratelimit.Limiter) {
	Engine = engine
	Metrics = metrics
	Limiter = limiter
}

// respondError транслирует ошибку ядра в код ответа и тело с машинным кодом.
func respondError(c *gin.Context, err error) {
	var vErr *queue.ValidationError
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, response.ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Ошибка валидации данных",
			Details: strings.Join(vErr.Details, "; "),
		})
	case errors.Is(err, queue.ErrDuplicateActiveCustomer):
		c.JSON(http.StatusConflict, response.ErrorResponse{
			Code:    "DUPLICATE_CUSTOMER",
			Message: "Клиент уже состоит в очереди",
		})
	case errors.Is(err, queue.ErrQueueEmpty):
		c.JSON(http.StatusConflict, response.ErrorResponse{
			Code:    "QUEUE_EMPTY",
			Message: "В очереди нет ожидающих клиентов",
		})
	case errors.Is(err, queue.ErrAlreadyServing):
		c.JSON(http.StatusConflict, response.ErrorResponse{
			Code:    "ALREADY_SERVING",
			Message: "Сначала завершите текущее обслуживание",
		})
	case errors.Is(err, queue.ErrInvalidState):
		c.JSON(http.StatusConflict, response.ErrorResponse{
			Code:    "INVALID_STATE",
			Message: "Операция недопустима для текущего статуса записи",
		})
	case errors.Is(err, queue.ErrNotFound):
		c.JSON(http.StatusNotFound, response.ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "Запись в очереди не найдена",
		})
	case errors.Is(err, queue.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, response.ErrorResponse{
			Code:    "STORE_UNAVAILABLE",
			Message: "Сервис временно недоступен, попробуйте ещё раз",
		})
	default:
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{
			Code:    "DB_ERROR",
			Message: "Внутренняя ошибка сервера",
			Details: err.Error(),
		})
	}
}
