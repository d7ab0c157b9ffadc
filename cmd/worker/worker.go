package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"example.com/yatube/internal/activity"
	appkafka "example.com/yatube/internal/broker"
	"example.com/yatube/internal/logger"
)

var logg = logger.New()

const fanoutLimit = 20

// Worker consumes domain events from Kafka and writes them into the
// activity timelines of everyone involved.
type Worker struct {
	store        activity.StoreInterface
	reader       appkafka.KafkaReader
	workerCount  int
	jobQueueSize int
}

// New creates a new concurrent Worker using pre-initialized dependencies.
func New(store activity.StoreInterface, reader appkafka.KafkaReader, workerCount, jobQueueSize int) *Worker {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	if jobQueueSize <= 0 {
		jobQueueSize = workerCount * 10
	}
	return &Worker{
		store:        store,
		reader:       reader,
		workerCount:  workerCount,
		jobQueueSize: jobQueueSize,
	}
}

// Run reads until ctx is canceled, then drains the queue and returns.
func (w *Worker) Run(ctx context.Context) {
	if w.workerCount <= 0 {
		w.workerCount = 1
	}
	if w.jobQueueSize <= 0 {
		w.jobQueueSize = 10
	}

	logg.Info("worker", "Starting "+fmt.Sprint(w.workerCount)+" workers with queue size "+fmt.Sprint(w.jobQueueSize))

	jobs := make(chan []byte, w.jobQueueSize)
	var wg sync.WaitGroup

	for i := 0; i < w.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.processLoop(ctx, jobs)
		}()
	}

	w.readLoop(ctx, jobs)

	close(jobs)
	wg.Wait()
	logg.Info("worker", "All workers stopped gracefully")
}

// readLoop reads Kafka messages and pushes them into the job queue.
func (w *Worker) readLoop(ctx context.Context, jobs chan<- []byte) {
	var retry int
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, err := w.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				backoff := time.Duration(math.Min(1000, math.Pow(2, float64(retry)))) * time.Millisecond
				logg.Error("worker", "Kafka read error, backing off", err)
				if !waitWithContext(ctx, backoff) {
					return
				}
				retry++
				continue
			}
			retry = 0

			if len(msg.Value) == 0 {
				if !waitWithContext(ctx, 50*time.Millisecond) {
					return
				}
				continue
			}

			for enqueued := false; !enqueued; {
				select {
				case jobs <- msg.Value:
					enqueued = true
				case <-ctx.Done():
					return
				case <-time.After(100 * time.Millisecond):
					logg.Info("worker", "Queue full, waiting to enqueue Kafka message")
				}
			}
		}
	}
}

func (w *Worker) processLoop(ctx context.Context, jobs <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.handle(ctx, data); err != nil {
				logg.Error("worker", "Failed to record activity event", err)
			}
		}
	}
}

// handle decodes one event and appends it to the actor's timeline and,
// when someone else was targeted, to theirs.
func (w *Worker) handle(ctx context.Context, data []byte) error {
	ev, err := appkafka.Decode(data)
	if err != nil {
		return fmt.Errorf("invalid event: %w", err)
	}

	entry := activity.Entry{
		EventID: ev.ID,
		Type:    string(ev.Type),
		Actor:   ev.Actor,
		Target:  ev.Target,
		PostID:  ev.PostID,
		Created: ev.Created,
	}

	recipients := []int64{ev.ActorID}
	if ev.TargetID != 0 && ev.TargetID != ev.ActorID {
		recipients = append(recipients, ev.TargetID)
	}

	var (
		fanoutWG  sync.WaitGroup
		mu        sync.Mutex
		errs      []error
		semaphore = make(chan struct{}, fanoutLimit)
	)
	for _, uid := range recipients {
		if ctx.Err() != nil {
			break
		}
		fanoutWG.Add(1)
		semaphore <- struct{}{}
		go func(u int64) {
			defer fanoutWG.Done()
			defer func() { <-semaphore }()
			if err := w.store.Append(ctx, u, entry); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(uid)
	}
	fanoutWG.Wait()

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	logg.Debug("worker", "Event delivered to activity timelines (IDs anonymized)")
	return nil
}

// waitWithContext waits for duration or context cancellation.
func waitWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Close shuts down the Kafka reader and the Cassandra session.
func (w *Worker) Close() error {
	logg.Info("worker", "Closing Kafka reader")
	if err := w.reader.Close(); err != nil {
		logg.Error("worker", "Error closing Kafka reader", err)
		return err
	}

	logg.Info("worker", "Closing Cassandra session")
	w.store.Close()
	return nil
}
