// Command loadgen fires concurrent purchases at a running server and checks
// that stock is conserved: successful orders never exceed the listed stock
// and the remaining stock accounts for every sale.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base URL")
	initialStock := flag.Int("stock", 20, "stock of the generated listing")
	totalRequests := flag.Int("requests", 50, "concurrent purchase requests")
	flag.Parse()

	client := &http.Client{Timeout: 15 * time.Second}

	listingID := createListing(client, *baseURL, *initialStock)
	log.Printf("created listing %s with stock %d", listingID, *initialStock)

	var succeeded, conflicted, failed atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func(buyer int) {
			defer wg.Done()
			status := placeOrder(client, *baseURL, listingID, fmt.Sprintf("buyer-%d", buyer))
			switch status {
			case http.StatusCreated:
				succeeded.Add(1)
			case http.StatusConflict, http.StatusServiceUnavailable:
				conflicted.Add(1)
			default:
				failed.Add(1)
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	remaining := listingStock(client, *baseURL, listingID)
	sold := succeeded.Load()

	fmt.Println("========== LOAD TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Total Requests:   %d\n", *totalRequests)
	fmt.Printf("Succeeded:        %d\n", sold)
	fmt.Printf("Rejected:         %d\n", conflicted.Load())
	fmt.Printf("Errors:           %d\n", failed.Load())
	fmt.Printf("Remaining Stock:  %d\n", remaining)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("=======================================")

	if int(sold) > *initialStock {
		log.Fatalf("FAIL: sold %d units from a stock of %d", sold, *initialStock)
	}
	if int(sold)+remaining != *initialStock {
		log.Fatalf("FAIL: sold %d + remaining %d != initial %d", sold, remaining, *initialStock)
	}
	fmt.Println("PASS: no overselling, stock conserved")
}

func createListing(client *http.Client, baseURL string, stock int) string {
	body, _ := json.Marshal(map[string]any{
		"owner_id": "loadgen-farmer",
		"name":     "loadgen-" + uuid.NewString()[:8],
		"unit":     "kg",
		"price":    40.0,
		"stock":    stock,
	})
	resp, err := client.Post(baseURL+"/api/listings", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("create listing: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		log.Fatalf("create listing: status %d", resp.StatusCode)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		log.Fatalf("decode listing: %v", err)
	}
	return created.ID
}

func placeOrder(client *http.Client, baseURL, listingID, buyerID string) int {
	body, _ := json.Marshal(map[string]any{
		"request_id": uuid.NewString(),
		"listing_id": listingID,
		"quantity":   1,
		"buyer":      map[string]string{"id": buyerID, "name": buyerID},
	})
	resp, err := client.Post(baseURL+"/api/orders", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("place order: %v", err)
		return 0
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

func listingStock(client *http.Client, baseURL, listingID string) int {
	resp, err := client.Get(baseURL + "/api/listings/" + listingID)
	if err != nil {
		log.Fatalf("get listing: %v", err)
	}
	defer resp.Body.Close()
	var l struct {
		StockQuantity int `json:"stock_quantity"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&l); err != nil {
		log.Fatalf("decode listing: %v", err)
	}
	return l.StockQuantity
}
