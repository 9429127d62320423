package app

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"tendermarket/internal/config"
	"tendermarket/internal/models"
	"tendermarket/internal/repository/memory"
)

func TestAppStartup(t *testing.T) {
	app := StartupApp(t)
	StopApp(app)
}

func TestPing(t *testing.T) {
	app := StartupApp(t)
	defer StopApp(app)

	resp, err := http.Get(fmt.Sprintf("http://%s/api/ping", app.cfg.ServerAddress))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/api/ping should return status code 200, got %d", resp.StatusCode)
	}
}

func TestOpenTenderHTTPFlow(t *testing.T) {
	app := StartupApp(t)
	defer StopApp(app)

	body := ReqTest(t, app, "POST", "/api/tenders/new", `{
		"name": "Landing page redesign",
		"description": "Four screens",
		"category": "freelance",
		"budget": 10000,
		"deadline": "2030-01-02T15:04:05Z"
	}`, owner, "create tender", http.StatusOK)

	var tender models.Tender
	if err := json.Unmarshal(body, &tender); err != nil {
		t.Fatal(err)
	}
	if tender.Status != models.TenderDraft {
		t.Fatalf("created tender status = %s, want draft", tender.Status)
	}

	// drafts are invisible to outsiders
	ReqTest(t, app, "GET", "/api/tenders/"+tender.Id, "", freelancer, "stranger reads draft", http.StatusForbidden)

	ReqTest(t, app, "PUT", "/api/tenders/"+tender.Id+"/publish", "", owner, "publish", http.StatusOK)
	ReqTest(t, app, "PUT", "/api/tenders/"+tender.Id+"/publish", "", owner, "double publish", http.StatusForbidden)

	ReqTest(t, app, "POST", "/api/proposals/new",
		fmt.Sprintf(`{"tenderId": "%s", "bidAmount": 8000, "description": "two weeks"}`, tender.Id),
		freelancer, "submit proposal", http.StatusOK)
	ReqTest(t, app, "POST", "/api/proposals/new",
		fmt.Sprintf(`{"tenderId": "%s", "bidAmount": 8000}`, tender.Id),
		company, "company bids on freelance tender", http.StatusForbidden)
	ReqTest(t, app, "POST", "/api/proposals/new",
		fmt.Sprintf(`{"tenderId": "%s", "bidAmount": 999999}`, tender.Id),
		freelancer, "bid over cap", http.StatusBadRequest)

	body = ReqTest(t, app, "GET", "/api/proposals/"+tender.Id+"/list", "", owner, "owner lists proposals", http.StatusOK)
	var proposals []models.Proposal
	if err := json.Unmarshal(body, &proposals); err != nil {
		t.Fatal(err)
	}
	if len(proposals) != 1 {
		t.Errorf("proposals = %d, want 1", len(proposals))
	}

	ReqTest(t, app, "GET", "/api/proposals/"+tender.Id+"/list", "", freelancer, "author lists proposals", http.StatusForbidden)

	body = ReqTest(t, app, "GET", "/api/tenders/"+tender.Id+"/audit", "", owner, "audit trail", http.StatusOK)
	var trail []models.AuditEntry
	if err := json.Unmarshal(body, &trail); err != nil {
		t.Fatal(err)
	}
	if len(trail) != 1 || trail[0].Action != models.AuditPublish {
		t.Errorf("audit trail = %+v", trail)
	}
}

func TestSealedTenderHTTPFlow(t *testing.T) {
	app := StartupApp(t)
	defer StopApp(app)

	body := ReqTest(t, app, "POST", "/api/tenders/new", `{
		"name": "Office network rebuild",
		"category": "professional",
		"workflowType": "closed",
		"budget": 100000,
		"deadline": "2030-01-02T15:04:05Z"
	}`, owner, "create sealed tender", http.StatusOK)

	var tender models.Tender
	if err := json.Unmarshal(body, &tender); err != nil {
		t.Fatal(err)
	}

	body = ReqTest(t, app, "PUT", "/api/tenders/"+tender.Id+"/publish", "", owner, "publish", http.StatusOK)
	if err := json.Unmarshal(body, &tender); err != nil {
		t.Fatal(err)
	}
	if tender.Status != models.TenderLocked {
		t.Fatalf("published sealed tender status = %s, want locked", tender.Status)
	}

	ReqTest(t, app, "POST", "/api/proposals/new",
		fmt.Sprintf(`{"tenderId": "%s", "bidAmount": 90000}`, tender.Id),
		company, "submit sealed bid", http.StatusOK)

	// sealed: nobody reads the bids, owner and admin included
	ReqTest(t, app, "GET", "/api/proposals/"+tender.Id+"/list", "", owner, "owner reads sealed bids", http.StatusForbidden)
	ReqTest(t, app, "GET", "/api/proposals/"+tender.Id+"/list", "", admin, "admin reads sealed bids", http.StatusForbidden)

	// locked means immutable, even for the owner
	ReqTest(t, app, "PATCH", "/api/tenders/"+tender.Id+"/edit", `{"name": "x"}`, owner, "edit locked tender", http.StatusForbidden)

	// and no reveal before the deadline transition
	ReqTest(t, app, "PUT", "/api/tenders/"+tender.Id+"/reveal", "", owner, "premature reveal", http.StatusForbidden)
}

func TestModerationHTTP(t *testing.T) {
	app := StartupApp(t)
	defer StopApp(app)

	body := ReqTest(t, app, "POST", "/api/tenders/new", `{
		"name": "Suspicious listing",
		"category": "freelance",
		"budget": 100,
		"deadline": "2030-01-02T15:04:05Z"
	}`, owner, "create tender", http.StatusOK)

	var tender models.Tender
	if err := json.Unmarshal(body, &tender); err != nil {
		t.Fatal(err)
	}
	ReqTest(t, app, "PUT", "/api/tenders/"+tender.Id+"/publish", "", owner, "publish", http.StatusOK)

	ReqTest(t, app, "PUT", "/api/tenders/"+tender.Id+"/moderate?action=flag&reason=spam", "", owner, "owner flags", http.StatusForbidden)

	body = ReqTest(t, app, "PUT", "/api/tenders/"+tender.Id+"/moderate?action=flag&reason=spam", "", admin, "admin flags", http.StatusOK)
	if err := json.Unmarshal(body, &tender); err != nil {
		t.Fatal(err)
	}
	if tender.Status != models.TenderCancelled {
		t.Fatalf("flagged tender status = %s, want cancelled", tender.Status)
	}

	body = ReqTest(t, app, "PUT", "/api/tenders/"+tender.Id+"/moderate?action=approve", "", admin, "admin approves", http.StatusOK)
	if err := json.Unmarshal(body, &tender); err != nil {
		t.Fatal(err)
	}
	if tender.Status != models.TenderPublished {
		t.Fatalf("approved tender status = %s, want published", tender.Status)
	}
}

func TestCallerHeadersRequired(t *testing.T) {
	app := StartupApp(t)
	defer StopApp(app)

	ReqTest(t, app, "GET", "/api/tenders", "", caller{}, "missing identity headers", http.StatusUnauthorized)
	ReqTest(t, app, "GET", "/api/tenders", "", caller{id: "u-1", role: "plumber"}, "unknown role", http.StatusUnauthorized)
}

//// Service

type caller struct {
	id   string
	role string
}

var (
	owner      = caller{id: "owner-1", role: "company"}
	company    = caller{id: "comp-2", role: "company"}
	freelancer = caller{id: "free-1", role: "freelancer"}
	admin      = caller{id: "admin-1", role: "admin"}
)

func StartupApp(t *testing.T) *App {
	t.Helper()

	cfg, err := config.NewConfig()
	if err != nil {
		t.Fatal(err)
	}
	cfg.ServerAddress = "localhost:17080"
	cfg.StorageDriver = "memory"
	cfg.SchedulerConfig.ScanInterval = time.Hour
	cfg.SchedulerConfig.StuckCheckInterval = time.Hour

	app, err := NewApp(WithConfig(cfg), WithStore(memory.NewStore()))
	if err != nil {
		t.Fatal(err)
	}

	go app.Run()
	time.Sleep(100 * time.Millisecond)
	return app
}

func StopApp(app *App) {
	app.stopSig <- os.Interrupt
	<-app.Done
}

func ReqTest(t *testing.T, app *App, method, path, body string, as caller, testName string, expectedStatus int) []byte {
	t.Helper()

	var reader io.Reader
	if len(body) > 0 {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, fmt.Sprintf("http://%s%s", app.cfg.ServerAddress, path), reader)
	if err != nil {
		t.Fatal(err)
	}
	if as.id != "" || as.role != "" {
		req.Header.Set("X-User-Id", as.id)
		req.Header.Set("X-User-Role", as.role)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != expectedStatus {
		t.Fatalf("%s: expected status %d, got %d: %s", testName, expectedStatus, resp.StatusCode, string(data))
	}
	return data
}
