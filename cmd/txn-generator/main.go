package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-faker/faker/v4"
	"github.com/golang-jwt/jwt/v5"

	"payment-lifecycle-engine/internal/card"
	"payment-lifecycle-engine/internal/core/domain"
	"payment-lifecycle-engine/internal/core/ports"
)

// declineCards trigger the simulator's fixed decline outcomes.
var declineCards = []string{
	"4000000000000002",
	"4000000000009995",
	"4000000000000069",
	"4000000000000127",
	"4000000000000119",
}

var currencies = []string{"USD", "EUR", "GBP", "CAD"}

func main() {
	// 1. Setting up flags
	targetURL := flag.String("target", "http://localhost:8080/api/v1/payments/process", "Target URL for sending payments")
	rps := flag.Int("rps", 20, "Requests per second")
	declineRatio := flag.Float64("decline-ratio", 0.1, "Share of requests using a card the simulator declines")
	subject := flag.String("subject", "txn-generator", "JWT subject")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": *subject,
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}

	log.Printf("Starting generator: target=%s, rps=%d\n", *targetURL, *rps)

	// 2. Managing the request frequency via ticker
	ticker := time.NewTicker(time.Second / time.Duration(*rps))
	defer ticker.Stop()

	// 3. Graceful Shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	client := &http.Client{Timeout: 15 * time.Second}

	// 4. Main loop
	for {
		select {
		case <-ticker.C:
			req := fakePayment(rng, *declineRatio)
			// Start sending in a goroutine so as not to block the ticker
			go sendRequest(ctx, client, *targetURL, token, req)
		case <-ctx.Done():
			log.Println("Shutting down generator...")
			return
		}
	}
}

func fakePayment(rng *rand.Rand, declineRatio float64) ports.ChargeRequest {
	number := faker.CCNumber()
	if rng.Float64() < declineRatio {
		number = declineCards[rng.Intn(len(declineCards))]
	}
	cvv := "123"
	if card.CVVLength(card.DetectNetwork(card.Normalize(number))) == 4 {
		cvv = "1234"
	}
	return ports.ChargeRequest{
		Amount:   int64(100 + rng.Intn(99900)),
		Currency: currencies[rng.Intn(len(currencies))],
		CardData: &domain.CardData{
			CardNumber:     number,
			ExpiryDate:     "12/30",
			CVV:            cvv,
			CardholderName: faker.Name(),
		},
		CustomerInfo: &ports.CustomerInfo{
			Email:     faker.Email(),
			FirstName: faker.FirstName(),
			LastName:  faker.LastName(),
		},
		OrderID:     faker.UUIDHyphenated(),
		Description: "generated load",
	}
}

func sendRequest(ctx context.Context, client *http.Client, url, token string, reqData ports.ChargeRequest) {
	body, err := json.Marshal(reqData)
	if err != nil {
		log.Printf("ERROR: failed to marshal request: %v", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		log.Printf("ERROR: failed to build request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	// Sending a request
	resp, err := client.Do(req)
	if err != nil {
		log.Printf("ERROR: failed to send request: %v", err)
		return
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Failed to close response body : %v", err)
		}
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
		log.Printf("INFO: payment approved, amount=%d %s", reqData.Amount, reqData.Currency)
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusUnprocessableEntity:
		log.Printf("INFO: payment declined, status: %d", resp.StatusCode)
	default:
		log.Printf("WARN: unexpected status code: %d", resp.StatusCode)
	}
}
