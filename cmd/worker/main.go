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

	"github.com/UnendingLoop/ImageEvolver/internal/artifact"
	"github.com/UnendingLoop/ImageEvolver/internal/kafka"
	"github.com/UnendingLoop/ImageEvolver/internal/model"
	"github.com/UnendingLoop/ImageEvolver/internal/observability"
	"github.com/UnendingLoop/ImageEvolver/internal/orchestrator"
	"github.com/UnendingLoop/ImageEvolver/internal/poller"
	"github.com/UnendingLoop/ImageEvolver/internal/prediction"
	"github.com/UnendingLoop/ImageEvolver/internal/publisher"
	"github.com/UnendingLoop/ImageEvolver/internal/repository"
	"github.com/UnendingLoop/ImageEvolver/internal/service"
	"github.com/UnendingLoop/ImageEvolver/internal/settings"
	"github.com/UnendingLoop/ImageEvolver/internal/storage"
	"github.com/UnendingLoop/ImageEvolver/internal/worker"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
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

	zlog.InitConsole()
	if err := zlog.SetLevel(cfg.LogLevel); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	// Listening to interruptions through context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// подключитсья к базе
	dbConn, err := repository.ConnectWithRetries(ctx, cfg.PostgresDSN, 5, 10*time.Second)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	repo := repository.NewPostgresEvolutionRepo(dbConn)

	// подкллючиться к хранилищу; без него каждый прогон завершится ошибкой стадии publish
	var store publisher.BlobStore
	strg, err := storage.NewBlobStorage(ctx, cfg.Storage, 5, 10*time.Second)
	switch {
	case err == nil:
		store = strg
	case errors.Is(err, model.ErrPublishDisabled):
		log.Println("Blob storage is not configured, evolutions will fail at publish stage")
	default:
		log.Fatalf("Failed to connect to blob storage: %v", err)
	}

	// собираем конвейер submit → await → process → publish
	client := prediction.NewClient(cfg.Backend.BaseURL, cfg.Backend.Token, cfg.Backend.Version, cfg.Backend.Timeout)
	orch := orchestrator.NewOrchestrator(
		client,
		poller.NewPoller(client),
		artifact.NewProcessor(cfg.FetchTimeout, cfg.MaxDownload),
		publisher.NewPublisher(store, cfg.Publish.Prefix, cfg.Publish.Retry),
	)

	metrics, metricsHandler, err := observability.NewMetrics()
	if err != nil {
		log.Fatalf("Failed to init metrics: %v", err)
	}
	metricsSrv := serveMetrics(cfg.MetricsPort, metricsHandler)

	// создаем экземпляр сервиса, очередь ему не нужна - задачи только читаются
	var svc EvolutionWorkerService = service.NewEvolutionService(repo, NoopPublisher{}, nil,
		func(h orchestrator.Hook) service.Runner { return orch.WithHook(h) },
		metrics,
		service.Config{
			PublishPrefix: cfg.Publish.Prefix,
			PublishName:   cfg.Publish.Name,
			Prompts:       cfg.Prompts,
			Policy:        cfg.Poll,
			Budget:        cfg.Budget,
			OrphanAge:     cfg.Recovery.Age,
		})

	// ждем пока кафка раздуплится
	if err := kafka.WaitKafkaReady(ctx, cfg.Kafka.Broker, 10, 5*time.Second); err != nil {
		log.Fatalf("Kafka is not available: %v", err)
	}
	// подключиться к кафке как читатель
	queue := make(chan kafkago.Message)
	retryStrategy := retry.Strategy{
		Attempts: 5,
		Delay:    2 * time.Second,
		Backoff:  1.5,
	}
	cons := wbfkafka.NewConsumer([]string{cfg.Kafka.Broker}, cfg.Kafka.Topic, cfg.Kafka.GroupID)
	cons.StartConsuming(ctx, queue, retryStrategy)

	// Собираем воедино все что нужно воркеру и запускаем его
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.NewWorkerInstance(svc, queue, cons).StartWorkers(ctx, cfg.Workers)
	}()

	// Waiting for interruption to stop context to start Graceful shutdown
	<-ctx.Done()
	<-done

	shutdown(metricsSrv, cons, dbConn)
	log.Println("Exiting worker...")
}

func serveMetrics(port string, h http.Handler) *http.Server {
	if port == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Printf("Metrics available on http://localhost%s/metrics\n", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Metrics server stopped: %v", err)
		}
	}()
	return srv
}

func shutdown(metricsSrv *http.Server, cons *wbfkafka.Consumer, dbConn *dbpg.DB) {
	log.Println("Interrupt received!!! Starting shutdown sequence...")

	if metricsSrv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(sctx); err != nil {
			log.Println("Failed to stop metrics server:", err)
		}
	}

	// Closing Kafka connection:
	if err := cons.Close(); err != nil {
		log.Println("Failed to close Kafka-reader:", err)
	}
	log.Println("Kafka-consumer connection closed.")

	// Closing DB connection
	if err := dbConn.Master.Close(); err != nil {
		log.Println("Failed to close DB-conn correctly:", err)
		return
	}
	log.Println("DBconn closed")
}
