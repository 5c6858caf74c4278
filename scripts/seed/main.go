package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/facilitydesk/facilitydesk/internal/billing"
)

// Pushes source collections to a running service, replacing what it holds.
// SEED_FILE names a JSON document shaped like the /billing/sources payload;
// without it the built-in demo data is sent.
func main() {
	baseURL := getenv("FACILITYDESK_URL", "http://localhost:8080")
	payload, err := loadPayload(os.Getenv("SEED_FILE"))
	if err != nil {
		log.Fatalf("load seed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, baseURL+"/billing/sources", bytes.NewReader(payload))
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	fmt.Println("→ Seeding billing sources...")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("seed sources: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("seed sources: %s: %s", resp.Status, body)
	}
	fmt.Printf("✓ Ledger rebuilt: %s\n", bytes.TrimSpace(body))
}

func loadPayload(path string) ([]byte, error) {
	if path != "" {
		return os.ReadFile(path)
	}
	src := billing.DemoSources()
	return json.Marshal(billing.ImportRequest{Invoices: src.Invoices, Payments: src.Payments, Expenses: src.Expenses})
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
