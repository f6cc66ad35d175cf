package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/darlinproweb/Barber-project/internal/auth"
	"github.com/darlinproweb/Barber-project/internal/handlers"
	"github.com/darlinproweb/Barber-project/internal/models"
	"github.com/darlinproweb/Barber-project/internal/notifier"
	"github.com/darlinproweb/Barber-project/internal/queue"
	"github.com/darlinproweb/Barber-project/internal/ratelimit"
	"github.com/darlinproweb/Barber-project/internal/storage"
	"github.com/darlinproweb/Barber-project/internal/tasks"
	"github.com/darlinproweb/Barber-project/internal/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @Title						Очередь барбершопа
// @securityDefinitions.apikey	BearerAuth
// @in							header
// @name						Authorization
func main() {
	key := os.Getenv("ENV_CHEK")
	if key == "" {
		fmt.Println("Подключение к .env")
		err := godotenv.Load()
		if err != nil {
			log.Fatal("Ошибка получения .env")
		}
	}

	storage.ConnectDatabase()

	if err := storage.DB.AutoMigrate(&models.Barber{}, &models.QueueEntry{}); err != nil {
		log.Fatal("Ошибка при миграции... ", err.Error())
	}

	storage.InitRedis()

	go ws.HubInstance.Run()

	store := storage.NewGormStore(storage.DB)
	metrics := notifier.New(store, ws.HubInstance)
	engine := queue.NewEngine(store, metrics, storeTimeout())
	limiter := ratelimit.NewRedisLimiter(storage.RedisClient, ratelimit.DefaultWindow, ratelimit.DefaultMaxRequests)

	handlers.Setup(engine, metrics, limiter)
	handlers.StatsCache = storage.RedisClient

	tasks.InitScheduler(engine)

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/login", handlers.Login)
		authGroup.POST("/register", handlers.Register)
		authGroup.POST("/refresh", handlers.RefreshToken)
	}

	// Публичные пути: вступление, статус и отмена по customer_id
	// не требуют операторской авторизации.
	public := r.Group("/api/queue")
	{
		public.POST("/join", handlers.JoinQueueHandler)
		public.GET("/position/:customer_id", handlers.QueuePositionHandler)
		public.POST("/cancel", handlers.CancelByCustomerHandler)
		public.GET("/status", handlers.QueueStatusHandler)
		public.GET("/ws", ws.QueueWebSocketHandler)
	}

	admin := r.Group("/api/admin", auth.AuthMiddleware())
	{
		admin.POST("/call-next", handlers.CallNextHandler)
		admin.POST("/complete", handlers.CompleteServiceHandler)
		admin.POST("/cancel", handlers.CancelEntryHandler)
		admin.POST("/walkin", handlers.WalkInHandler)
		admin.GET("/queue", handlers.AdminQueueHandler)
		admin.GET("/stats", handlers.AdminStatsHandler)
	}

	if err := r.Run(":8080"); err != nil {
		log.Fatal("Ошибка запуска сервера...", err.Error())
	}
}

func storeTimeout() time.Duration {
	if v := os.Getenv("STORE_TIMEOUT_SECONDS"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return queue.DefaultStoreTimeout
}
