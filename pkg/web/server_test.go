package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/probelab/callprobe/pkg/bridge"
	"github.com/probelab/callprobe/pkg/realtime"
	"github.com/probelab/callprobe/pkg/scenario"
	"github.com/probelab/callprobe/pkg/score"
	"github.com/probelab/callprobe/pkg/store"
	"github.com/probelab/callprobe/pkg/telephony"
)

func newTestServer(t *testing.T) (*Server, *store.Memory, *scenario.Memory) {
	t.Helper()
	objects := store.NewMemory()
	tests := scenario.NewMemory()
	srv := NewServer(Deps{
		Registry:    bridge.NewRegistry(),
		Tests:       tests,
		Objects:     objects,
		Scorer:      &score.Mock{},
		Controller:  telephony.NewMockController(),
		NewEndpoint: func() (realtime.Endpoint, error) { return realtime.NewMock(), nil },
	})
	return srv, objects, tests
}

func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/healthz", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "ok") {
		t.Errorf("body = %s", body)
	}
}

func TestListSessionsEmpty(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/api/sessions", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestGetReport(t *testing.T) {
	srv, objects, _ := newTestServer(t)

	if _, err := objects.Put(context.Background(), store.ReportKey("r1"),
		"application/json", []byte(`{"id":"r1"}`)); err != nil {
		t.Fatal(err)
	}

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/api/reports/r1", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != `{"id":"r1"}` {
		t.Errorf("body = %s", body)
	}

	resp, err = srv.App().Test(httptest.NewRequest("GET", "/api/reports/missing", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 404 {
		t.Errorf("missing report status = %d", resp.StatusCode)
	}
}

func TestCreateAndListTests(t *testing.T) {
	srv, _, tests := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/tests", strings.NewReader(
		`{"persona":"a support agent","behavior":"polite","question":"hours?","expected":"nine to five"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 201 {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var created scenario.Test
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.ID == "" || created.Status != scenario.StatusPending {
		t.Errorf("created = %+v", created)
	}

	stored, err := tests.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("created test not stored: %v", err)
	}
	if stored.Question != "hours?" {
		t.Errorf("stored = %+v", stored)
	}

	resp, err = srv.App().Test(httptest.NewRequest("GET", "/api/tests", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("list status = %d", resp.StatusCode)
	}
}

func TestCreateTestValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/tests", strings.NewReader(`{"behavior":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 400 {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestBridgeStreamRunsCall(t *testing.T) {
	srv, objects, tests := newTestServer(t)

	test := &scenario.Test{ID: "t-1", Persona: "a customer", Question: "What are your hours?"}
	if err := tests.Create(context.Background(), test); err != nil {
		t.Fatal(err)
	}

	conn := &fakeConn{inbound: [][]byte{
		[]byte(`{"event":"connected"}`),
		[]byte(`{"event":"start","start":{"callSid":"CA7","streamSid":"MZ7","customParameters":{"test_id":"t-1"}}}`),
		[]byte(`{"event":"stop"}`),
	}}

	srv.bridgeStream(context.Background(), NewStream(conn))

	if n := srv.deps.Registry.Len(); n != 0 {
		t.Errorf("registry len = %d after call end, want 0", n)
	}
	if n := objects.Len(); n != 1 {
		t.Errorf("stored objects = %d, want the report", n)
	}
	stored, err := tests.Get(context.Background(), "t-1")
	if err != nil {
		t.Fatal(err)
	}
	// No audio or transcript ever arrived, so the call scores as failed.
	if stored.Status != scenario.StatusFailed {
		t.Errorf("test status = %q, want %q", stored.Status, scenario.StatusFailed)
	}
}

func TestBridgeStreamUnknownTest(t *testing.T) {
	srv, objects, _ := newTestServer(t)

	conn := &fakeConn{inbound: [][]byte{
		[]byte(`{"event":"start","start":{"callSid":"CA8","streamSid":"MZ8","customParameters":{"test_id":"nope"}}}`),
	}}

	srv.bridgeStream(context.Background(), NewStream(conn))

	if n := srv.deps.Registry.Len(); n != 0 {
		t.Errorf("registry len = %d, want 0", n)
	}
	if n := objects.Len(); n != 0 {
		t.Errorf("stored objects = %d, want none", n)
	}
}

func TestMediaStreamRequiresUpgrade(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := srv.App().Test(httptest.NewRequest("GET", "/media-stream", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 426 {
		t.Errorf("status = %d, want 426", resp.StatusCode)
	}
}
