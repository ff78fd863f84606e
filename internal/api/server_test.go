package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nerrad567/vault-core/internal/coordinator"
	"github.com/nerrad567/vault-core/internal/dispatch"
	"github.com/nerrad567/vault-core/internal/infrastructure/config"
	"github.com/nerrad567/vault-core/internal/infrastructure/logging"
)

// fakePublisher records published MQTT messages.
type fakePublisher struct {
	published []string
}

func (f *fakePublisher) PublishQoS(topic string, _ []byte) error {
	f.published = append(f.published, topic)
	return nil
}

// newTestServer wires a real coordinator and dispatcher behind the router.
func newTestServer(t *testing.T) (*httptest.Server, *coordinator.Coordinator) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Vault.ProtocolVersion = 1
	cfg.Reconciliation.StalenessThreshold = 300
	cfg.Reconciliation.ForceRefreshThreshold = 900
	cfg.Reconciliation.SweepInterval = 3600
	cfg.Reconciliation.QueueSize = 16
	cfg.Reconciliation.MaxSensorsPerHub = 100
	cfg.Reconciliation.ResyncBackoffInitial = 5
	cfg.Reconciliation.ResyncBackoffMax = 300
	cfg.Reconciliation.EventRetentionDays = 30
	cfg.Commands.DefaultTimeout = 10
	cfg.Commands.MaxRetries = 2
	cfg.Commands.AckGrace = 60

	d := dispatch.New(&fakePublisher{}, time.Minute)
	c := coordinator.New(cfg, d)
	c.Start(context.Background())
	t.Cleanup(c.Stop)

	srv, err := New(Deps{
		Config:      cfg.API,
		Commands:    cfg.Commands,
		Logger:      logging.Default(),
		Coordinator: c,
		Dispatcher:  d,
		Version:     "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)
	return ts, c
}

// registerHub feeds telemetry through the coordinator and waits for the
// hub to become visible.
func registerHub(t *testing.T, c *coordinator.Coordinator, hubID string) {
	t.Helper()

	topic := fmt.Sprintf("hubs/%s/v1/telemetry/sensors", hubID)
	payload := []byte(`{
		"partial": false,
		"timestamp": 100.0,
		"sensors": [
			{"id": "temp-1", "temperature": 21.5},
			{"id": "door-1", "state": "closed"}
		]
	}`)
	if err := c.HandleMessage(topic, payload); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := c.Hub(hubID); err == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("hub %s never registered", hubID)
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()

	resp, err := http.Get(url) //nolint:gosec // Test URL from httptest
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Test cleanup

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s response: %v", url, err)
		}
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body any, out any) int {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshalling request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data)) //nolint:gosec // Test URL
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Test cleanup

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s response: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	var body map[string]any
	status := getJSON(t, ts.URL+"/api/v1/health", &body)
	if status != http.StatusOK {
		t.Fatalf("health status = %d, want 200", status)
	}
	if body["status"] != "ok" {
		t.Errorf("health body = %v, want status ok", body)
	}
}

func TestListHubs(t *testing.T) {
	ts, c := newTestServer(t)

	var empty struct {
		Count int `json:"count"`
	}
	if status := getJSON(t, ts.URL+"/api/v1/hubs/", &empty); status != http.StatusOK {
		t.Fatalf("list status = %d, want 200", status)
	}
	if empty.Count != 0 {
		t.Errorf("count = %d, want 0 before registration", empty.Count)
	}

	registerHub(t, c, "hub-garage")

	var listed struct {
		Count int `json:"count"`
		Hubs  []struct {
			HubID       string `json:"hub_id"`
			SensorCount int    `json:"sensor_count"`
		} `json:"hubs"`
	}
	if status := getJSON(t, ts.URL+"/api/v1/hubs/", &listed); status != http.StatusOK {
		t.Fatalf("list status = %d, want 200", status)
	}
	if listed.Count != 1 || listed.Hubs[0].HubID != "hub-garage" {
		t.Fatalf("unexpected hub list: %+v", listed)
	}
	if listed.Hubs[0].SensorCount != 2 {
		t.Errorf("sensor_count = %d, want 2", listed.Hubs[0].SensorCount)
	}
}

func TestGetHubNotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	var errBody Error
	status := getJSON(t, ts.URL+"/api/v1/hubs/no-such-hub", &errBody)
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
	if errBody.Code != ErrCodeNotFound {
		t.Errorf("error code = %q, want %q", errBody.Code, ErrCodeNotFound)
	}
}

func TestListSensors(t *testing.T) {
	ts, c := newTestServer(t)
	registerHub(t, c, "hub-attic")

	var body struct {
		HubID   string `json:"hub_id"`
		Count   int    `json:"count"`
		Sensors []struct {
			ID    string `json:"id"`
			Stale bool   `json:"stale"`
		} `json:"sensors"`
	}
	if status := getJSON(t, ts.URL+"/api/v1/hubs/hub-attic/sensors", &body); status != http.StatusOK {
		t.Fatalf("sensors status = %d, want 200", status)
	}
	if body.Count != 2 {
		t.Fatalf("count = %d, want 2", body.Count)
	}
	// Sorted by ID
	if body.Sensors[0].ID != "door-1" || body.Sensors[1].ID != "temp-1" {
		t.Errorf("sensors not sorted: %+v", body.Sensors)
	}

	// Stale filter excludes fresh sensors
	var stale struct {
		Count int `json:"count"`
	}
	getJSON(t, ts.URL+"/api/v1/hubs/hub-attic/sensors?stale=true", &stale)
	if stale.Count != 0 {
		t.Errorf("stale count = %d, want 0", stale.Count)
	}
}

func TestDispatchCommand(t *testing.T) {
	ts, c := newTestServer(t)
	registerHub(t, c, "hub-shed")

	var cmd struct {
		CommandID   string `json:"command_id"`
		Status      string `json:"status"`
		CommandName string `json:"command_name"`
	}
	status := postJSON(t, ts.URL+"/api/v1/hubs/hub-shed/commands/", map[string]any{
		"command_name": "config.update",
		"fields":       map[string]any{"key": "value"},
	}, &cmd)
	if status != http.StatusAccepted {
		t.Fatalf("dispatch status = %d, want 202", status)
	}
	if cmd.CommandID == "" || cmd.Status != "pending" {
		t.Fatalf("unexpected command: %+v", cmd)
	}

	// The tracked command is retrievable until it completes or is purged.
	var fetched struct {
		CommandID string `json:"command_id"`
	}
	url := ts.URL + "/api/v1/hubs/hub-shed/commands/" + cmd.CommandID
	if status := getJSON(t, url, &fetched); status != http.StatusOK {
		t.Fatalf("get command status = %d, want 200", status)
	}
	if fetched.CommandID != cmd.CommandID {
		t.Errorf("command_id = %q, want %q", fetched.CommandID, cmd.CommandID)
	}
}

func TestDispatchCommandRejectsBadName(t *testing.T) {
	ts, _ := newTestServer(t)

	var errBody Error
	status := postJSON(t, ts.URL+"/api/v1/hubs/hub-x/commands/", map[string]any{
		"command_name": "noseparator",
	}, &errBody)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	if errBody.Code != ErrCodeBadRequest {
		t.Errorf("error code = %q, want %q", errBody.Code, ErrCodeBadRequest)
	}
}

func TestBroadcast(t *testing.T) {
	ts, _ := newTestServer(t)

	var body struct {
		CommandID string `json:"command_id"`
		Command   string `json:"command"`
	}
	status := postJSON(t, ts.URL+"/api/v1/broadcast", map[string]any{
		"command": "ping",
	}, &body)
	if status != http.StatusAccepted {
		t.Fatalf("broadcast status = %d, want 202", status)
	}
	if body.Command != "ping" || body.CommandID == "" {
		t.Errorf("unexpected broadcast response: %+v", body)
	}
}

func TestDeprovisionHub(t *testing.T) {
	ts, c := newTestServer(t)
	registerHub(t, c, "hub-old")

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/v1/hubs/hub-old", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck // Test cleanup

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deprovision status = %d, want 200", resp.StatusCode)
	}

	// Hub is gone afterwards
	if status := getJSON(t, ts.URL+"/api/v1/hubs/hub-old", nil); status != http.StatusNotFound {
		t.Errorf("get after deprovision = %d, want 404", status)
	}
}
