// Command simulator drives the ledger's command API with a stream of
// create_account and create_transaction submissions against
// POST /commands and POST /instances, a smoke-load generator for
// exercising the queue and OCC paths under concurrent traffic.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var baseURL = getenv("BASE_URL", "http://localhost:8080")

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// callRecord is a local endpoint/status/duration record; it lives here
// rather than in a shared package since this binary only ever reports
// its own run.
type callRecord struct {
	Endpoint string
	Status   int
	Duration time.Duration
}

var (
	recordsMu sync.Mutex
	records   []callRecord
)

func record(endpoint string, status int, duration time.Duration) {
	recordsMu.Lock()
	records = append(records, callRecord{Endpoint: endpoint, Status: status, Duration: duration})
	recordsMu.Unlock()
}

func postJSON(endpoint string, body interface{}) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}
	start := time.Now()
	resp, err := http.Post(baseURL+endpoint, "application/json", bytes.NewReader(payload))
	duration := time.Since(start)
	if err != nil {
		record(endpoint, 0, duration)
		return 0, nil, err
	}
	defer resp.Body.Close()
	respBody := make([]byte, 0, 256)
	buf := make([]byte, 256)
	for {
		n, rerr := resp.Body.Read(buf)
		respBody = append(respBody, buf[:n]...)
		if rerr != nil {
			break
		}
	}
	record(endpoint, resp.StatusCode, duration)
	return resp.StatusCode, respBody, nil
}

func createInstance(address string) error {
	status, _, err := postJSON("/instances", map[string]string{"address": address})
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("create instance %s: status %d", address, status)
	}
	return nil
}

func createAccount(instance, address, accountType, currency string) error {
	cmd := map[string]interface{}{
		"instance_address": instance,
		"type":             "create_account",
		"source":           "simulator",
		"source_idempk":    address,
		"payload": map[string]interface{}{
			"address":  address,
			"name":     address,
			"type":     accountType,
			"currency": currency,
		},
	}
	status, _, err := postJSON("/commands?sync=true", cmd)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("create account %s: status %d", address, status)
	}
	return nil
}

var txnSeq int64

func postTransaction(instance, from, to string, amount int64, currency string) {
	seq := atomic.AddInt64(&txnSeq, 1)
	cmd := map[string]interface{}{
		"instance_address": instance,
		"type":              "create_transaction",
		"source":            "simulator",
		"source_idempk":     fmt.Sprintf("txn-%d", seq),
		"payload": map[string]interface{}{
			"status": "posted",
			"entries": []map[string]interface{}{
				{"account_address": from, "type": "credit", "amount": amount, "currency": currency},
				{"account_address": to, "type": "debit", "amount": amount, "currency": currency},
			},
		},
	}
	if _, _, err := postJSON("/commands", cmd); err != nil {
		log.Printf("transaction error: %v", err)
	}
}

func randomTransfer(instance string, addresses []string, currency string) {
	from := addresses[rand.Intn(len(addresses))]
	to := addresses[rand.Intn(len(addresses))]
	for to == from && len(addresses) > 1 {
		to = addresses[rand.Intn(len(addresses))]
	}
	postTransaction(instance, from, to, int64(rand.Intn(100)+1), currency)
}

func main() {
	rand.Seed(time.Now().UnixNano())

	const (
		instanceAddress = "simulator"
		numAccounts     = 100
		totalOps        = 10000
		blockSize       = 100
		blockPause      = 100 * time.Millisecond
		currency        = "USD"
	)

	if err := createInstance(instanceAddress); err != nil {
		log.Printf("create instance (continuing, may already exist): %v", err)
	}

	addresses := make([]string, 0, numAccounts+1)
	reserve := "reserve:funding"
	if err := createAccount(instanceAddress, reserve, "equity", currency); err != nil {
		log.Fatalf("cannot create reserve account: %v", err)
	}

	for i := 0; i < numAccounts; i++ {
		address := fmt.Sprintf("cash:user%d", i+1)
		if err := createAccount(instanceAddress, address, "asset", currency); err != nil {
			log.Fatalf("cannot create account %s: %v", address, err)
		}
		addresses = append(addresses, address)
		postTransaction(instanceAddress, reserve, address, 1000, currency)
	}

	for sent := 0; sent < totalOps; {
		var wg sync.WaitGroup
		for i := 0; i < blockSize && sent < totalOps; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				randomTransfer(instanceAddress, addresses, currency)
			}()
			sent++
		}
		wg.Wait()
		time.Sleep(blockPause)
	}

	recordsMu.Lock()
	defer recordsMu.Unlock()
	for _, r := range records {
		log.Printf("%s status=%d duration=%s", r.Endpoint, r.Status, r.Duration)
	}
}
