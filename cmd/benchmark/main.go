package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	location    string
)

// Metrics
var (
	totalRequests uint64
	success200    uint64
	fail409       uint64 // Locked / stale-version conflicts
	fail422       uint64 // Validation rejections
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&location, "location", "bench", "Location name to hammer")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark | Workers: %d | Duration: %s | Location: %s", concurrency, duration, location)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for time.Since(start) < duration {
		date := time.Now().AddDate(0, 0, -rand.Intn(28)).Format("2006-01-02")
		url := fmt.Sprintf("%s/api/v1/records/%s/%s", targetURL, location, date)

		// Load, tweak, save: the same contention pattern two tills racing on
		// one sheet would produce.
		resp, err := client.Get(url)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}
		var rec map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&rec)
		resp.Body.Close()

		rec["staff"] = "Bench Worker"
		rec["float_amount"] = "250"
		body, _ := json.Marshal(rec)

		req, _ := http.NewRequest(http.MethodPut, url, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Staff-Name", "Bench Worker")

		putResp, err := client.Do(req)
		atomic.AddUint64(&totalRequests, 1)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}
		putResp.Body.Close()

		switch putResp.StatusCode {
		case http.StatusOK:
			atomic.AddUint64(&success200, 1)
		case http.StatusConflict:
			atomic.AddUint64(&fail409, 1)
		case http.StatusUnprocessableEntity:
			atomic.AddUint64(&fail422, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
	}
}

func printResults(elapsed time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	fmt.Println("\n--- Benchmark Results ---")
	fmt.Printf("Elapsed:        %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Total Saves:    %d (%.1f req/s)\n", total, float64(total)/elapsed.Seconds())
	fmt.Printf("  200 OK:       %d\n", atomic.LoadUint64(&success200))
	fmt.Printf("  409 Conflict: %d\n", atomic.LoadUint64(&fail409))
	fmt.Printf("  422 Invalid:  %d\n", atomic.LoadUint64(&fail422))
	fmt.Printf("  Other/Error:  %d\n", atomic.LoadUint64(&failOther))
}
