package integration_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	alarms "alarmcast/internal/alarms/domain"
	apihttp "alarmcast/internal/api/http"
)

func TestActiveAlarmsFilteredByPermission(t *testing.T) {
	f := newFixture(t, routerOptions{snapshotOK: true, resolver: defaultResolver()})

	cases := []struct {
		user    string
		wantIDs []string
	}{
		{user: "alice", wantIDs: []string{"a-1", "a-3"}},
		{user: "bob", wantIDs: []string{"a-1", "a-2", "a-3"}},
		{user: "mallory", wantIDs: []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.user, func(t *testing.T) {
			token := mustToken(t, f.secret, tc.user, "viewer")
			resp := doGet(t, f.server.URL+"/api/v1/alarms/active", token)
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("expected 200, got %d", resp.StatusCode)
			}

			var body struct {
				AlarmCount int                  `json:"alarm_count"`
				Timestamp  int64                `json:"timestamp"`
				Alarms     []alarms.ActiveAlarm `json:"alarms"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.AlarmCount != len(tc.wantIDs) {
				t.Fatalf("expected count %d, got %d", len(tc.wantIDs), body.AlarmCount)
			}
			if body.Timestamp != snapshotTakenAt.Unix() {
				t.Fatalf("expected timestamp %d, got %d", snapshotTakenAt.Unix(), body.Timestamp)
			}
			if len(body.Alarms) != len(tc.wantIDs) {
				t.Fatalf("expected %d alarms, got %d", len(tc.wantIDs), len(body.Alarms))
			}
			for i, id := range tc.wantIDs {
				if body.Alarms[i].ID != id {
					t.Fatalf("expected alarm %s at %d, got %s", id, i, body.Alarms[i].ID)
				}
			}
		})
	}
}

func TestActiveAlarmsResolverFailure(t *testing.T) {
	resolver := defaultResolver()
	resolver.errs = map[string]error{"alice": errors.New("permission backend down")}
	f := newFixture(t, routerOptions{snapshotOK: true, resolver: resolver})
	token := mustToken(t, f.secret, "alice", "viewer")

	resp := doGet(t, f.server.URL+"/api/v1/alarms/active", token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}

func TestActiveAlarmsBeforeFirstPoll(t *testing.T) {
	f := newFixture(t, routerOptions{snapshotOK: false, resolver: defaultResolver()})
	token := mustToken(t, f.secret, "alice", "viewer")

	resp := doGet(t, f.server.URL+"/api/v1/alarms/active", token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestExportAlarmsCSV(t *testing.T) {
	f := newFixture(t, routerOptions{snapshotOK: true, resolver: defaultResolver()})
	token := mustToken(t, f.secret, "alice", "viewer")

	resp := doGet(t, f.server.URL+"/api/v1/exports/alarms.csv", token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %s", ct)
	}

	records, err := csv.NewReader(resp.Body).ReadAll()
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header + 2 rows, got %d records", len(records))
	}
	if records[0][0] != "alarm_id" || records[0][1] != "item_id" {
		t.Fatalf("unexpected header %v", records[0])
	}
	if records[1][0] != "a-1" || records[2][0] != "a-3" {
		t.Fatalf("expected permitted alarms only, got %v / %v", records[1], records[2])
	}
}

func TestExportAlarmsXLSX(t *testing.T) {
	f := newFixture(t, routerOptions{snapshotOK: true, resolver: defaultResolver()})
	token := mustToken(t, f.secret, "bob", "viewer")

	resp := doGet(t, f.server.URL+"/api/v1/exports/alarms.xlsx", token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	book, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer book.Close()

	count, err := book.GetCellValue("summary", "B4")
	if err != nil {
		t.Fatalf("read summary cell: %v", err)
	}
	if count != "3" {
		t.Fatalf("expected alarm count 3, got %q", count)
	}
	first, err := book.GetCellValue("alarms", "A2")
	if err != nil {
		t.Fatalf("read alarms cell: %v", err)
	}
	if first != "a-1" {
		t.Fatalf("expected first alarm a-1, got %q", first)
	}
}

func TestExportAlarmsPDF(t *testing.T) {
	f := newFixture(t, routerOptions{snapshotOK: true, resolver: defaultResolver()})
	token := mustToken(t, f.secret, "alice", "viewer")

	resp := doGet(t, f.server.URL+"/api/v1/exports/alarms.pdf", token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.HasPrefix(payload, []byte("%PDF")) {
		t.Fatalf("expected pdf payload, got %q", payload[:min(8, len(payload))])
	}
}

func TestExportAlarmsUnknownFormat(t *testing.T) {
	f := newFixture(t, routerOptions{snapshotOK: true, resolver: defaultResolver()})
	token := mustToken(t, f.secret, "alice", "viewer")

	resp := doGet(t, f.server.URL+"/api/v1/exports/alarms.json", token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestRateLimitCapsBursts(t *testing.T) {
	limitCfg := apihttp.DefaultRateLimitConfig()
	limitCfg.Rate = 1
	limitCfg.Burst = 2

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	limiter := apihttp.RateLimit(ctx, limitCfg, nil)

	f := newFixture(t, routerOptions{snapshotOK: true, resolver: defaultResolver(), limiter: limiter})
	token := mustToken(t, f.secret, "alice", "viewer")

	for i := 0; i < 2; i++ {
		resp := doGet(t, f.server.URL+"/api/v1/alarms/active", token)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}
	resp := doGet(t, f.server.URL+"/api/v1/alarms/active", token)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", resp.StatusCode)
	}

	// Exempt paths are never throttled.
	health := doGet(t, f.server.URL+"/healthz", "")
	health.Body.Close()
	if health.StatusCode != http.StatusOK {
		t.Fatalf("expected healthz to bypass limiter, got %d", health.StatusCode)
	}
}
