// Package main (in api-subfolder) provides launch of the whole application except worker
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/UnendingLoop/ImageEvolver/internal/kafka"
	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/UnendingLoop/ImageEvolver/internal/mwlogger"
	"github.com/UnendingLoop/ImageEvolver/internal/observability"
	"github.com/UnendingLoop/ImageEvolver/internal/repository"
	"github.com/UnendingLoop/ImageEvolver/internal/service"
	"github.com/UnendingLoop/ImageEvolver/internal/settings"
	"github.com/UnendingLoop/ImageEvolver/internal/storage"
	"github.com/UnendingLoop/ImageEvolver/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/ginext"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/zlog"
)

func main() {
	// инициализировать конфиг/ считать энвы
	appConfig := config.New()
	appConfig.EnableEnv("")
	if err := appConfig.LoadEnvFiles("./.env"); err != nil {
		log.Fatalf("Failed to load envs: %s\nExiting app...", err)
	}
	cfg := settings.Load(appConfig)

	// стартуем логгер
	zlog.InitConsole()
	if err := zlog.SetLevel(cfg.LogLevel); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	// готовим заранее слушатель прерываний - контекст для всего приложения
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// подключитсья к базе
	dbConn, err := repository.ConnectWithRetries(ctx, cfg.PostgresDSN, 5, 10*time.Second)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	// накатываем миграцию
	if err := repository.MigrateWithRetries(ctx, dbConn.Master, "./migrations", 10, 15*time.Second); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}
	repo := repository.NewPostgresEvolutionRepo(dbConn)

	// подключиться к хранилищу; без него галерея и новые эволюции отвечают 503
	var gallery service.BlobLister
	strg, err := storage.NewBlobStorage(ctx, cfg.Storage, 5, 10*time.Second)
	switch {
	case err == nil:
		gallery = strg
	case errors.Is(err, model.ErrPublishDisabled):
		log.Println("Blob storage is not configured, publishing is disabled")
	default:
		log.Fatalf("Failed to connect to blob storage: %v", err)
	}

	// ждем пока кафка раздуплится
	if err := kafka.WaitKafkaReady(ctx, cfg.Kafka.Broker, 10, 5*time.Second); err != nil {
		log.Fatalf("Kafka is not available: %v", err)
	}
	if err := kafka.InitKafkaTopics(ctx, cfg.Kafka.Broker, 5, 10*time.Second, cfg.Kafka.Topic); err != nil {
		log.Fatalf("Failed to create Kafka topics: %v", err)
	}
	// подключиться к кафке как продюсер
	pub := wbfkafka.NewProducer([]string{cfg.Kafka.Broker}, cfg.Kafka.Topic)

	metrics, metricsHandler, err := observability.NewMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}

	// создаем экземпляр сервиса
	var svc EvolutionAPIService = service.NewEvolutionService(repo, pub, gallery, nil, metrics, service.Config{
		PublishPrefix: cfg.Publish.Prefix,
		PublishName:   cfg.Publish.Name,
		Prompts:       cfg.Prompts,
		OrphanAge:     cfg.Recovery.Age,
	})
	// cоздаем экземпляр хендлера HTTP
	handlers := transport.NewEvolutionHandler(svc)
	// сетапим сервер
	engine := ginext.New(cfg.GinMode)

	engine.GET("/ping", handlers.SimplePinger)
	engine.POST("/evolutions", handlers.Evolve)          // новая эволюция в очередь
	engine.GET("/evolutions", handlers.GetAllEvolutions) // история с пагинацией и сортировкой
	engine.GET("/evolutions/:id", handlers.GetEvolution) // статус одной эволюции
	engine.GET("/gallery", handlers.Gallery)             // все опубликованные картинки
	engine.GET("/latest", handlers.Latest)               // редирект на последнюю
	engine.GET("/metrics", gin.WrapH(metricsHandler))

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           mwlogger.NewMWLogger(engine),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Server launch
	go func() {
		log.Printf("Server running on http://localhost%s\n", srv.Addr)
		err := srv.ListenAndServe()
		if err != nil {
			switch {
			case errors.Is(err, http.ErrServerClosed):
				log.Println("Server gracefully stopping...")
			default:
				log.Printf("Server stopped: %v", err)
				stop()
			}
		}
	}()

	// запускаем фонового воркера для отслеживания подвисших задач
	go recoveryLoop(ctx, svc, cfg.Recovery)

	// ждем отмены контекста для запуска грейсфул закрытия соединений бд и кафки
	<-ctx.Done()

	shutdown(srv, pub, dbConn)
	log.Println("Exiting API...")
}

func recoveryLoop(ctx context.Context, svc EvolutionAPIService, cfg settings.Recovery) {
	defer func() {
		if r := recover(); r != nil {
			log.Println("Recovery loop crashed:", r)
		}
	}()

	if cfg.Every <= 0 {
		log.Println("Recovery loop is disabled")
		return
	}
	ticker := time.NewTicker(cfg.Every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.ReviveOrphans(ctx, cfg.Batch)
		}
	}
}

func shutdown(srv *http.Server, prod *wbfkafka.Producer, dbConn *dbpg.DB) {
	log.Println("Interrupt received!!! Starting shutdown sequence...")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Println("Failed to stop HTTP-server gracefully:", err)
	}

	// Closing Kafka connection:
	if err := prod.Close(); err != nil {
		log.Println("Failed to close Kafka-writer:", err)
	}
	log.Println("Kafka-producer connection closed.")

	// Closing DB connection
	if err := dbConn.Master.Close(); err != nil {
		log.Println("Failed to close DB-conn correctly:", err)
		return
	}
	log.Println("DBconn closed")
}
