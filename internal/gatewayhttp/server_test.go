package gatewayhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/meridianlabs/agentgateway/internal/sessionmgr"
	"github.com/meridianlabs/agentgateway/pkg/models"
)

func newTestServer(t *testing.T) (*Server, *sessionmgr.Manager, string) {
	t.Helper()
	mgr := sessionmgr.New(sessionmgr.Config{}, nil)
	t.Cleanup(mgr.Close)

	addr := fmt.Sprintf("127.0.0.1:%d", 20000+time.Now().Nanosecond()%9000)
	srv := New(Config{Addr: addr, Sessions: mgr})
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		_ = srv.Stop(context.Background())
	})
	time.Sleep(20 * time.Millisecond)
	return srv, mgr, addr
}

func TestHandleHealthReportsOK(t *testing.T) {
	_, _, addr := newTestServer(t)

	resp, err := http.Get("http://" + addr + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.Healthy {
		t.Fatal("expected healthy response with no channels/health monitor wired")
	}
}

func TestHandleListSessionsReturnsRegisteredSessions(t *testing.T) {
	_, mgr, addr := newTestServer(t)
	mgr.GetOrCreate("telegram", "user-1", "")

	resp, err := http.Get("http://" + addr + "/sessions")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var summaries []models.SessionSummary
	if err := json.NewDecoder(resp.Body).Decode(&summaries); err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 session, got %d", len(summaries))
	}
}

func TestHandleSteerSessionEnqueuesMessage(t *testing.T) {
	_, mgr, addr := newTestServer(t)
	sess := mgr.GetOrCreate("telegram", "user-1", "")

	payload, _ := json.Marshal(steerRequest{Kind: models.SteeringInject, Content: "look at the logs"})
	resp, err := http.Post("http://"+addr+"/sessions/"+sess.ID()+"/steer", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	drained := sess.Steering().Drain()
	if len(drained) != 1 || drained[0].Content != "look at the logs" {
		t.Fatalf("unexpected drained steering messages: %+v", drained)
	}
}

func TestHandleSteerSessionUnknownIDReturns404(t *testing.T) {
	_, _, addr := newTestServer(t)

	payload, _ := json.Marshal(steerRequest{Content: "hi"})
	resp, err := http.Post("http://"+addr+"/sessions/does-not-exist/steer", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestHandleEndSessionRemovesItFromListing(t *testing.T) {
	_, mgr, addr := newTestServer(t)
	sess := mgr.GetOrCreate("telegram", "user-1", "")
	_ = sess.Activate()

	req, _ := http.NewRequest(http.MethodDelete, "http://"+addr+"/sessions/"+sess.ID(), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if sess.State() != models.SessionCompleted {
		t.Fatalf("expected session completed after DELETE, got %s", sess.State())
	}
}
