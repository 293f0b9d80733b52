//go:build ignore

// Smoke test for a running scoring service: scores one record, delivers
// the realized outcome, and reads the drift status back.
// Run with: go run scripts/smoke_predict.go [server-url]
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

const defaultServer = "http://localhost:12310"

func main() {
	server := defaultServer
	if len(os.Args) > 1 {
		server = os.Args[1]
	}
	client := &http.Client{Timeout: 10 * time.Second}

	fmt.Printf("Smoke test against %s\n", server)

	// 1. Liveness and readiness
	var ready struct {
		Ready           bool   `json:"ready"`
		ArtifactVersion string `json:"artifact_version"`
	}
	mustGet(client, server+"/ready", &ready)
	if !ready.Ready {
		log.Fatalf("service is not ready; is an artifact loaded?")
	}
	fmt.Printf("  ✓ ready, serving artifact %s\n", ready.ArtifactVersion)

	// 2. Score one record
	record := map[string]any{
		"features": map[string]any{
			"tenure":        12,
			"usage":         100,
			"contract_type": "Two year",
		},
	}
	var prediction struct {
		RequestID    string  `json:"request_id"`
		Label        int     `json:"label"`
		Probability  float64 `json:"probability"`
		ModelVersion string  `json:"model_version"`
	}
	mustPost(client, server+"/v1/predict", record, http.StatusOK, &prediction)
	fmt.Printf("  ✓ predict: label=%d probability=%.4f version=%s\n",
		prediction.Label, prediction.Probability, prediction.ModelVersion)

	// 3. Deliver the realized outcome for the same request id
	outcome := map[string]any{
		"request_id":     prediction.RequestID,
		"realized_label": 1 - prediction.Label,
	}
	mustPost(client, server+"/v1/outcomes", outcome, http.StatusAccepted, nil)
	fmt.Printf("  ✓ outcome accepted for %s\n", prediction.RequestID)

	// 4. Read the drift monitor status
	var drift struct {
		State     string `json:"state"`
		Statistic string `json:"statistic"`
	}
	mustGet(client, server+"/v1/drift/status", &drift)
	fmt.Printf("  ✓ drift monitor: state=%s statistic=%s\n", drift.State, drift.Statistic)

	fmt.Println("Smoke test passed")
}

// mustGet fetches url and decodes the JSON body into out, dying on failure.
func mustGet(client *http.Client, url string, out any) {
	resp, err := client.Get(url)
	if err != nil {
		log.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("GET %s: status %d, body %s", url, resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		log.Fatalf("GET %s: decode %q: %v", url, body, err)
	}
}

// mustPost sends payload as JSON and checks for the expected status,
// decoding the body into out when out is non-nil.
func mustPost(client *http.Client, url string, payload any, wantStatus int, out any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Fatalf("POST %s: encode: %v", url, err)
	}
	resp, err := client.Post(url, "application/json", bytes.NewBuffer(data))
	if err != nil {
		log.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != wantStatus {
		log.Fatalf("POST %s: status %d, want %d, body %s", url, resp.StatusCode, wantStatus, body)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			log.Fatalf("POST %s: decode %q: %v", url, body, err)
		}
	}
}
