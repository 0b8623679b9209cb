package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/agrilink/farmchat/internal/ai"
	"github.com/agrilink/farmchat/internal/config"
	"github.com/agrilink/farmchat/internal/knowledge"
	"github.com/agrilink/farmchat/internal/store/rabbitmq"
	"github.com/agrilink/farmchat/internal/store/vec"
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	vdb, err := vec.Open(cfg.VecDBPath)
	if err != nil {
		logger.Fatal("vector store open failed", zap.Error(err))
	}
	defer func() { _ = vdb.Close() }()

	if cfg.GeminiAPIKey == "" {
		logger.Fatal("GEMINI_API_KEY is required for knowledge ingest")
	}
	embedder, err := ai.NewGenAIEmbedder(ctx, cfg.GeminiAPIKey, cfg.GeminiEmbedModel)
	if err != nil {
		logger.Fatal("embedder init failed", zap.Error(err))
	}

	kb := knowledge.NewBase(vdb, embedder, logger)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		logger.Fatal("rabbit dial failed", zap.Error(err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("rabbit channel failed", zap.Error(err))
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(cfg.RabbitQueue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": cfg.RabbitQueue + ".dlq",
	}); err != nil {
		logger.Fatal("queue declare failed", zap.Error(err))
	}

	concurrency := workerConcurrency()
	if err := ch.Qos(concurrency, 0, false); err != nil {
		logger.Fatal("qos failed", zap.Error(err))
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		logger.Fatal("consume failed", zap.Error(err))
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("worker started",
		zap.String("queue", cfg.RabbitQueue),
		zap.Int("concurrency", concurrency))

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var job rabbitmq.IngestJob
				if err := json.Unmarshal(d.Body, &job); err != nil || job.JobID == "" {
					logger.Warn("bad ingest message", zap.Int("worker", workerID), zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := kb.Ingest(runCtx, job.Entry); err != nil {
					logger.Warn("ingest failed",
						zap.Int("worker", workerID),
						zap.String("job_id", job.JobID),
						zap.Duration("cost", time.Since(start)),
						zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}

				logger.Info("entry ingested",
					zap.Int("worker", workerID),
					zap.String("job_id", job.JobID),
					zap.String("facility", job.Entry.FacilityID),
					zap.Duration("cost", time.Since(start)))

				if err := d.Ack(false); err != nil {
					logger.Warn("ack failed", zap.Int("worker", workerID), zap.String("job_id", job.JobID), zap.Error(err))
				}
			}
		}(i)
	}

	for {
		select {
		case <-runCtx.Done():
			logger.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				logger.Warn("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}
