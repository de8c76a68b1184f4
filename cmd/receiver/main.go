// Command receiver is a sample subscriber endpoint for local testing. It
// demonstrates the inbound verification contract: recompute the HMAC over the
// raw request body with the subscription secret and compare it to the
// signature header in constant time.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/complyport/webhook-engine/internal/signer"
	"github.com/complyport/webhook-engine/internal/worker"
)

var requestCount atomic.Int64

func main() {
	port := "9090"
	if p := os.Getenv("PORT"); p != "" {
		port = p
	}
	secret := os.Getenv("WEBHOOK_SECRET")

	// Successful endpoint: verifies the signature, then returns 200
	http.HandleFunc("/webhook/success", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read failed", http.StatusBadRequest)
			return
		}

		verified := "skipped (no WEBHOOK_SECRET)"
		if secret != "" {
			if signer.Verify(body, r.Header.Get(worker.HeaderSignature), secret) {
				verified = "ok"
			} else {
				verified = "FAILED"
				logRequest(r, count, 401, verified)
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "bad signature"})
				return
			}
		}
		logRequest(r, count, 200, verified)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "received"})
	})

	// Slow endpoint: delays 3 seconds before responding
	http.HandleFunc("/webhook/slow", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		time.Sleep(3 * time.Second)
		logRequest(r, count, 200, "skipped")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "received (slow)"})
	})

	// Failing endpoint: always returns 500
	http.HandleFunc("/webhook/fail", func(w http.ResponseWriter, r *http.Request) {
		count := requestCount.Add(1)
		logRequest(r, count, 500, "skipped")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
	})

	// Stats endpoint: shows request count
	http.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{"total_requests": requestCount.Load()})
	})

	log.Printf("Sample receiver starting on :%s", port)
	log.Printf("  POST /webhook/success  -> 200 OK (verifies signature)")
	log.Printf("  POST /webhook/slow     -> 200 OK (3s delay)")
	log.Printf("  POST /webhook/fail     -> 500 Error")
	log.Printf("  GET  /stats            -> request count")

	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func logRequest(r *http.Request, count int64, status int, verified string) {
	fmt.Printf("[#%d] %s %s -> %d | sig=%s event=%s sub=%s verify=%s\n",
		count,
		r.Method,
		r.URL.Path,
		status,
		truncate(r.Header.Get(worker.HeaderSignature), 16),
		r.Header.Get(worker.HeaderEvent),
		truncate(r.Header.Get(worker.HeaderSubscription), 8),
		verified,
	)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
