package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/streamchat/internal/chat"
	"github.com/suPer8Hu/streamchat/internal/config"
	"github.com/suPer8Hu/streamchat/internal/db"
	"github.com/suPer8Hu/streamchat/internal/logging"
	"github.com/suPer8Hu/streamchat/internal/store/rabbitmq"
)

const (
	maxAttempts = 5
	retryDelay  = 10 * time.Second
	jobTimeout  = 30 * time.Second
)

type turnAppender interface {
	AppendTurnAt(ctx context.Context, sessionID string, at time.Time, turns ...chat.Turn) error
}

type retryPublisher interface {
	PublishRetry(ctx context.Context, body []byte, attempt int, delay time.Duration) error
}

type ackAction int

const (
	actionAck ackAction = iota
	actionDrop
)

// handleDelivery applies one persist job. Failed jobs go back through the
// retry queue until maxAttempts, then to the DLQ.
func handleDelivery(ctx context.Context, log *slog.Logger, history turnAppender, retry retryPublisher, body []byte, attempt int) ackAction {
	m, err := rabbitmq.DecodePersist(body)
	if err != nil {
		log.Warn("bad persist message", "err", err)
		return actionDrop
	}

	start := time.Now()
	err = history.AppendTurnAt(ctx, m.SessionID, m.OccurredAt, m.Turns...)
	if err == nil {
		log.Info("persist applied", "session_id", m.SessionID, "turns", len(m.Turns), "attempt", attempt, "cost", time.Since(start).String())
		return actionAck
	}

	log.Error("persist failed", "session_id", m.SessionID, "attempt", attempt, "err", err)
	if attempt+1 >= maxAttempts {
		return actionDrop
	}
	if perr := retry.PublishRetry(ctx, body, attempt+1, retryDelay); perr != nil {
		log.Error("publish retry failed", "session_id", m.SessionID, "err", perr)
		return actionDrop
	}
	return actionAck
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// processDelivery settles one delivery. After shutdown begins, deliveries
// still buffered locally are requeued untouched. A started job runs on a
// detached context so shutdown cannot fail it.
func processDelivery(ctx context.Context, log *slog.Logger, history turnAppender, retry retryPublisher, d amqp.Delivery, ack acknowledger) {
	if ctx.Err() != nil {
		if err := ack.Nack(false, true); err != nil {
			log.Error("requeue failed", "err", err)
		}
		return
	}

	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), jobTimeout)
	defer cancel()

	switch handleDelivery(jctx, log, history, retry, d.Body, rabbitmq.Attempt(d.Headers)) {
	case actionAck:
		if err := ack.Ack(false); err != nil {
			log.Error("ack failed", "err", err)
		}
	case actionDrop:
		_ = ack.Nack(false, false)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	log := logging.Setup(os.Stdout, cfg.LogLevel)

	if cfg.RabbitURL == "" {
		log.Error("RABBIT_URL is required for the worker")
		os.Exit(1)
	}

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	history := chat.NewHistory(gdb)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Error("rabbit dial", "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Error("rabbit channel", "err", err)
		os.Exit(1)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.Error("queue declare", "err", err)
		os.Exit(1)
	}

	pubCh, err := conn.Channel()
	if err != nil {
		log.Error("rabbit publish channel", "err", err)
		os.Exit(1)
	}
	retry := rabbitmq.NewPublisherOnChannel(pubCh, cfg.RabbitQueue)
	defer retry.Close()

	concurrency := cfg.WorkerConcurrency
	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Error("qos", "err", err)
		os.Exit(1)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Error("consume", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("worker started", "queue", cfg.RabbitQueue, "concurrency", concurrency)

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			wlog := log.With("worker", workerID)
			for d := range jobs {
				processDelivery(ctx, wlog, history, retry, d, d)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Warn("delivery channel closed")
				close(jobs)
				wg.Wait()
				return
			}
			jobs <- d
		}
	}
}
