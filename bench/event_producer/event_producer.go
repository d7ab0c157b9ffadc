package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	appkafka "example.com/yatube/internal/broker"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Floods the events topic with follow events spread over a pool of users to
// measure how fast the activity worker drains it.
func main() {
	var (
		total      int
		batchSize  int
		numWorkers int
		users      int
		broker     string
		topic      string
	)
	flag.IntVar(&total, "n", 100000, "total number of events to send")
	flag.IntVar(&batchSize, "batch", 100, "messages per write")
	flag.IntVar(&numWorkers, "workers", 4, "parallel producers")
	flag.IntVar(&users, "users", 1000, "size of the synthetic user id pool")
	flag.StringVar(&broker, "broker", "localhost:9092", "kafka broker")
	flag.StringVar(&topic, "topic", "yatube-events", "events topic")
	flag.Parse()

	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers: appkafka.ParseBrokers(broker),
		Topic:   topic,
		Async:   true,
	})
	defer w.Close()

	start := time.Now()

	var successCount uint64
	var failCount uint64

	jobs := make(chan int, total)
	var wg sync.WaitGroup

	flush := func(batch []kafka.Message) {
		if err := w.WriteMessages(context.Background(), batch...); err != nil {
			atomic.AddUint64(&failCount, uint64(len(batch)))
			fmt.Printf("write error: %v\n", err)
			return
		}
		atomic.AddUint64(&successCount, uint64(len(batch)))
	}

	for wID := 0; wID < numWorkers; wID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			batch := make([]kafka.Message, 0, batchSize)

			for i := range jobs {
				actor := int64(i%users) + 1
				target := int64((i+1)%users) + 1
				ev := appkafka.Event{
					ID:       uuid.NewString(),
					Type:     appkafka.EventFollow,
					ActorID:  actor,
					Actor:    "bench-" + strconv.FormatInt(actor, 10),
					TargetID: target,
					Target:   "bench-" + strconv.FormatInt(target, 10),
					Created:  time.Now().UTC(),
				}
				v, err := json.Marshal(ev)
				if err != nil {
					atomic.AddUint64(&failCount, 1)
					fmt.Printf("marshal error: %v\n", err)
					continue
				}

				batch = append(batch, kafka.Message{Key: []byte(strconv.FormatInt(actor, 10)), Value: v})
				if len(batch) >= batchSize {
					flush(batch)
					batch = batch[:0]
				}
			}

			if len(batch) > 0 {
				flush(batch)
			}
		}()
	}

	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)

	wg.Wait()

	elapsed := time.Since(start)
	fmt.Printf("Total events: %d\n", total)
	fmt.Printf("Successful: %d, Failed: %d\n", successCount, failCount)
	fmt.Printf("Elapsed time: %s\n", elapsed)
	fmt.Printf("Throughput: %.2f msg/s\n", float64(successCount)/elapsed.Seconds())
}
