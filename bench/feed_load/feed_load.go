package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

func main() {
	// --- Command-line flags ---
	var server string
	var duration int
	var concurrency int
	var csvFile string
	var trimPercent float64
	var paths string

	flag.StringVar(&server, "server", "http://localhost:8080", "server base URL")
	flag.IntVar(&duration, "duration", 30, "duration in seconds")
	flag.IntVar(&concurrency, "c", 50, "number of concurrent readers")
	flag.StringVar(&csvFile, "csv", "latencies.csv", "CSV file to save latencies")
	flag.Float64Var(&trimPercent, "trim", 1.0, "percent of latency to trim from top and bottom for trimmed mean")
	flag.StringVar(&paths, "paths", "/,/?page=2", "comma separated pages to request, e.g. /,/group/cats/,/sarah/")
	flag.Parse()

	targets := splitPaths(paths)
	if len(targets) == 0 {
		fmt.Println("no paths to request")
		os.Exit(2)
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		// count redirects as responses instead of following them
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}

	stopTime := time.Now().Add(time.Duration(duration) * time.Second)
	var wg sync.WaitGroup

	var requests int64
	var successes int64
	var errors4xx int64
	var errors5xx int64
	var cacheHits int64

	latencySlices := make([][]float64, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			var localLatencies []float64

			for n := idx; time.Now().Before(stopTime); n++ {
				target := server + targets[n%len(targets)]
				start := time.Now()
				req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, target, nil)
				resp, err := client.Do(req)
				atomic.AddInt64(&requests, 1)
				if err != nil {
					fmt.Printf("Request error: %v\n", err)
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				localLatencies = append(localLatencies, time.Since(start).Seconds()*1000)

				switch {
				case resp.StatusCode >= 200 && resp.StatusCode < 400:
					atomic.AddInt64(&successes, 1)
				case resp.StatusCode < 500:
					atomic.AddInt64(&errors4xx, 1)
				default:
					atomic.AddInt64(&errors5xx, 1)
				}
				if resp.Header.Get("X-Cache") == "HIT" {
					atomic.AddInt64(&cacheHits, 1)
				}
			}

			latencySlices[idx] = localLatencies
		}(i)
	}

	wg.Wait()

	var allLatencies []float64
	for _, slice := range latencySlices {
		allLatencies = append(allLatencies, slice...)
	}
	sort.Float64s(allLatencies)

	hitRatio := 0.0
	if requests > 0 {
		hitRatio = float64(cacheHits) / float64(requests) * 100
	}
	fmt.Printf("Requests: %d  Successes: %d  4xx: %d  5xx: %d  cache hits: %d (%.1f%%)\n",
		requests, successes, errors4xx, errors5xx, cacheHits, hitRatio)
	fmt.Printf("Latency (ms): trimmed_mean=%.2f p50=%.2f p90=%.2f p99=%.2f\n",
		trimmedMean(allLatencies, trimPercent),
		percentile(allLatencies, 50), percentile(allLatencies, 90), percentile(allLatencies, 99))

	if err := writeCSV(csvFile, allLatencies); err != nil {
		fmt.Printf("Failed to write CSV file: %v\n", err)
		return
	}
	fmt.Printf("Saved latencies to %s\n", csvFile)
}

func splitPaths(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		out = append(out, p)
	}
	return out
}

func writeCSV(path string, latencies []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Write([]string{"latency_ms"})
	for _, d := range latencies {
		w.Write([]string{fmt.Sprintf("%.3f", d)})
	}
	w.Flush()
	return w.Error()
}

// trimmedMean drops trimPercent of the samples from each end of sorted data.
func trimmedMean(data []float64, trimPercent float64) float64 {
	if len(data) == 0 {
		return 0
	}
	trim := int(float64(len(data)) * trimPercent / 100.0)
	if trim*2 >= len(data) {
		trim = (len(data) - 1) / 2
	}
	trimmed := data[trim : len(data)-trim]
	var sum float64
	for _, v := range trimmed {
		sum += v
	}
	return sum / float64(len(trimmed))
}

// percentile interpolates the p-th percentile of sorted data.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	k := (p / 100.0) * float64(len(data)-1)
	f := int(k)
	c := f + 1
	if c >= len(data) {
		return data[len(data)-1]
	}
	return data[f]*(float64(c)-k) + data[c]*(k-float64(f))
}
