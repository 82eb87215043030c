//go:build integration

package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/complyflow/engine/internal/config"
)

// setupTestDB creates a PostgreSQL testcontainer and runs migrations.
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("postgres://postgres:password@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	for i := 0; i < 30; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	migrationSQL, err := os.ReadFile("../../migrations/000001_initial_schema.up.sql")
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}
	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		postgres.Terminate(ctx)
	}
	return db, cleanup
}

func testConfig() *config.Config {
	return &config.Config{
		Port:            8080,
		TieBreak:        "tenant_first",
		ScoreWorkers:    2,
		SweepInterval:   time.Minute,
		AgentTimeout:    5 * time.Second,
		AwaitAgent:      true,
		ShutdownTimeout: 5 * time.Second,
	}
}

func startTestServer(t *testing.T, db *sql.DB) *httptest.Server {
	server, err := NewServerWithDB(db, testConfig())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)
	return ts
}

// TestEndToEnd_RuleMatchCreatesRecommendation covers the full flow:
// create a rule with a create_recommendation action, post a matching
// event, then read the execution log and the pending recommendation.
func TestEndToEnd_RuleMatchCreatesRecommendation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ts := startTestServer(t, db)
	baseURL := ts.URL + "/api/v1"

	t.Log("Creating rule...")
	createRuleReq := map[string]any{
		"code":         "SA-DATA-RESIDENCY",
		"name":         "Saudi data residency",
		"triggerEvent": "company_profile_updated",
		"condition": `{"field": "company.country", "operator": "equals", "value": "SA"}`,
		"actions": []map[string]any{
			{
				"type": "create_recommendation",
				"parameters": map[string]any{
					"entity_type": "company",
					"entity_id":   "c-1",
					"action_type": "Review",
					"title":       "Review PDPL data residency controls",
					"confidence":  90,
					"priority":    1,
				},
			},
		},
		"priority": 10,
		"active":   true,
	}
	ruleResp := makeRequest(t, "POST", baseURL+"/rules", createRuleReq)
	if ruleResp["id"] == "" {
		t.Fatalf("Expected rule id, got %v", ruleResp)
	}

	t.Log("Posting matching event...")
	eventReq := map[string]any{
		"name":       "company_profile_updated",
		"entityType": "company",
		"entityId":   "c-1",
		"payload": map[string]any{
			"company": map[string]any{"country": "SA", "employees": 120},
		},
	}
	eventResp := makeRequest(t, "POST", baseURL+"/events", eventReq)

	if matched, _ := eventResp["totalMatched"].(float64); matched != 1 {
		t.Errorf("Expected 1 matched rule, got %v", eventResp["totalMatched"])
	}
	execs := eventResp["executions"].([]any)
	if len(execs) != 1 {
		t.Fatalf("Expected 1 execution, got %d", len(execs))
	}
	first := execs[0].(map[string]any)
	if first["status"] != "Executed" {
		t.Errorf("Expected status Executed, got %v", first["status"])
	}

	t.Log("Posting non-matching event...")
	eventReq["payload"] = map[string]any{
		"company": map[string]any{"country": "DE"},
	}
	eventResp = makeRequest(t, "POST", baseURL+"/events", eventReq)
	if matched, _ := eventResp["totalMatched"].(float64); matched != 0 {
		t.Errorf("Expected 0 matched rules, got %v", eventResp["totalMatched"])
	}

	t.Log("Checking execution log...")
	logResp := makeRequestNoBody(t, "GET", baseURL+"/rules/executions?limit=10")
	if rows := logResp["executions"].([]any); len(rows) != 2 {
		t.Errorf("Expected 2 execution rows, got %d", len(rows))
	}

	t.Log("Checking pending recommendation...")
	recResp := makeRequestNoBody(t, "GET", baseURL+"/recommendations?entityType=company&entityId=c-1")
	recs := recResp["recommendations"].([]any)
	if len(recs) != 1 {
		t.Fatalf("Expected 1 recommendation, got %d", len(recs))
	}
	rec := recs[0].(map[string]any)
	if rec["actionType"] != "Review" || rec["status"] != "Pending" {
		t.Errorf("Unexpected recommendation: %v", rec)
	}

	t.Log("Accepting recommendation...")
	statusReq := map[string]any{"status": "Accepted", "actedBy": "user-1"}
	acted := makeRequest(t, "POST", baseURL+"/recommendations/"+rec["id"].(string)+"/status", statusReq)
	if acted["status"] != "Accepted" {
		t.Errorf("Expected Accepted, got %v", acted["status"])
	}

	// A second transition must be rejected.
	resp, err := makeHTTPRequest("POST", baseURL+"/recommendations/"+rec["id"].(string)+"/status",
		map[string]any{"status": "Rejected"})
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 Conflict, got %d", resp.StatusCode)
	}
}

// TestEndToEnd_TriggerFires covers trigger registration and throttled
// firing through the event endpoint.
func TestEndToEnd_TriggerFires(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ts := startTestServer(t, db)
	baseURL := ts.URL + "/api/v1"

	createTriggerReq := map[string]any{
		"code":               "EVIDENCE-REJECTED-NOTIFY",
		"name":               "Notify on evidence rejection",
		"eventType":          "evidence_rejected",
		"agentName":          "notifier",
		"agentAction":        "send",
		"maxDailyExecutions": 1,
		"active":             true,
	}
	trigResp := makeRequest(t, "POST", baseURL+"/triggers", createTriggerReq)
	triggerID := trigResp["id"].(string)

	eventReq := map[string]any{
		"name":       "evidence_rejected",
		"entityType": "evidence",
		"entityId":   "e-1",
		"payload":    map[string]any{"reason": "incomplete"},
	}
	makeRequest(t, "POST", baseURL+"/events", eventReq)
	makeRequest(t, "POST", baseURL+"/events", eventReq)

	// Dispatch is asynchronous; poll for both rows.
	var rows []any
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		execResp := makeRequestNoBody(t, "GET", baseURL+"/triggers/"+triggerID+"/executions")
		rows = execResp["executions"].([]any)
		if len(rows) >= 2 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 trigger executions, got %d", len(rows))
	}

	statuses := map[string]int{}
	for _, row := range rows {
		statuses[row.(map[string]any)["status"].(string)]++
	}
	if statuses["Completed"] != 1 || statuses["Skipped"] != 1 {
		t.Errorf("Expected one Completed and one Skipped, got %v", statuses)
	}
}

// TestEndToEnd_Scoring covers score computation, previous-score
// chaining, and history retrieval over HTTP.
func TestEndToEnd_Scoring(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ts := startTestServer(t, db)
	baseURL := ts.URL + "/api/v1"

	scoreReq := map[string]any{
		"entityType":          "assessment",
		"entityId":            "a-1",
		"totalTasks":          20,
		"completedTasks":      2,
		"overdueTasks":        15,
		"taskVelocity":        0.5,
		"velocityTrend":       "Declining",
		"slaBreachCount":      8,
		"slaAdherencePercent": 40,
	}
	first := makeRequest(t, "POST", baseURL+"/scores/pci", scoreReq)
	if first["scoreType"] != "pci" {
		t.Errorf("Expected scoreType pci, got %v", first["scoreType"])
	}
	if _, ok := first["previousScore"]; ok {
		t.Errorf("First score should have no previousScore, got %v", first["previousScore"])
	}

	scoreReq["completedTasks"] = 10
	scoreReq["overdueTasks"] = 2
	second := makeRequest(t, "POST", baseURL+"/scores/pci", scoreReq)
	if second["previousScore"] == nil {
		t.Error("Second score should carry previousScore")
	}

	latest := makeRequestNoBody(t, "GET", baseURL+"/scores/assessment/a-1/pci")
	if latest["score"] != second["score"] {
		t.Errorf("Latest score %v != second computed %v", latest["score"], second["score"])
	}

	history := makeRequestNoBody(t, "GET", baseURL+"/scores/assessment/a-1/pci/history?days=7")
	if rows := history["scores"].([]any); len(rows) != 2 {
		t.Errorf("Expected 2 history rows, got %d", len(rows))
	}
}

func makeRequest(t *testing.T, method, url string, body any) map[string]any {
	resp, err := makeHTTPRequest(method, url, body)
	if err != nil {
		t.Fatalf("Failed to make %s request to %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.Fatalf("Request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return result
}

func makeRequestNoBody(t *testing.T, method, url string) map[string]any {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make %s request to %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.Fatalf("Request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return result
}

func makeHTTPRequest(method, url string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 5 * time.Second}
	return client.Do(req)
}
