package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"campusattend/internal/config"
	"campusattend/internal/logger"
	"campusattend/internal/queue"
	"campusattend/internal/store"
	"campusattend/internal/worker"
)

// Worker consumes domain events published by the API.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	zl, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var q queue.Queue
	switch cfg.QueueBackend {
	case "redis":
		rc := store.NewRedis(cfg.RedisAddr)
		defer rc.Close()
		if !rc.Healthy(ctx) {
			zl.Warn("waiting for redis", zap.String("addr", rc.Addr))
			if err := rc.Wait(ctx, 2*time.Second); err != nil {
				return
			}
		}
		q = queue.NewRedisQueue(rc.Client, "")
	case "amqp":
		aq, err := queue.NewAMQPQueue(cfg.AMQPURL, "")
		if err != nil {
			zl.Fatal("amqp connect failed", zap.Error(err))
		}
		defer aq.Close()
		q = aq
	default:
		zl.Fatal("the worker needs a shared queue; set QUEUE_BACKEND to redis or amqp",
			zap.String("queue", cfg.QueueBackend))
	}

	if err := worker.New(zl).Run(ctx, q); err != nil {
		zl.Error("worker failed", zap.Error(err))
	}
}
