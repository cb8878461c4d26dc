package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jimbogithub/kafka/internal/coordinator"
	"github.com/jimbogithub/kafka/internal/metrics"
	"github.com/jimbogithub/kafka/internal/runtime"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	rt := runtime.New(nil, runtime.Config{
		Partitions:          4,
		HeartbeatIntervalMs: 3000,
		OffsetRetention:     time.Hour,
	}, nil)
	err := rt.Load(&coordinator.MetadataImage{
		Version: 1,
		Topics: map[string]coordinator.TopicImage{
			"orders": {Name: "orders", Partitions: 4},
		},
	})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return NewServer(rt, nil, nil, DefaultServerConfig())
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func joinMember(t *testing.T, s *Server, group string) heartbeatResponse {
	t.Helper()
	rec := doJSON(t, s, "POST", "/groups/"+group+"/heartbeat", heartbeatRequest{
		MemberEpoch:      0,
		ClientID:         "client-1",
		SubscribedTopics: []string{"orders"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("join status: %d body: %s", rec.Code, rec.Body.String())
	}
	var resp heartbeatResponse
	decodeBody(t, rec, &resp)
	return resp
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var body map[string]interface{}
	decodeBody(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("health body: %v", body)
	}
}

func TestServer_HeartbeatJoin(t *testing.T) {
	s := newTestServer(t)

	resp := joinMember(t, s, "g-1")
	if resp.MemberID == "" {
		t.Error("member id must be assigned")
	}
	if resp.MemberEpoch != 1 {
		t.Errorf("epoch: got %d, want 1", resp.MemberEpoch)
	}
	if resp.HeartbeatIntervalMs != 3000 {
		t.Errorf("interval: got %d", resp.HeartbeatIntervalMs)
	}
}

func TestServer_HeartbeatUnknownMember(t *testing.T) {
	s := newTestServer(t)
	joinMember(t, s, "g-1")

	rec := doJSON(t, s, "POST", "/groups/g-1/heartbeat", heartbeatRequest{
		MemberID:    "ghost",
		MemberEpoch: 3,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want 404; body: %s", rec.Code, rec.Body.String())
	}
	var body map[string]interface{}
	decodeBody(t, rec, &body)
	if int16(body["error_code"].(float64)) != int16(coordinator.CodeUnknownMemberID) {
		t.Errorf("error_code: got %v", body["error_code"])
	}
}

func TestServer_HeartbeatBadBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("POST", "/groups/g-1/heartbeat", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestServer_CommitAndFetchOffsets(t *testing.T) {
	s := newTestServer(t)
	member := joinMember(t, s, "g-1")

	rec := doJSON(t, s, "POST", "/groups/g-1/offsets", commitOffsetsRequest{
		MemberID:     member.MemberID,
		GenerationID: member.MemberEpoch,
		Offsets: []commitOffsetEntry{
			{Topic: "orders", Partition: 0, Offset: 42, Metadata: "cp"},
			{Topic: "orders", Partition: 1, Offset: -5},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("commit status: %d body: %s", rec.Code, rec.Body.String())
	}
	var commit commitOffsetsResponse
	decodeBody(t, rec, &commit)
	if commit.Partitions[0].ErrorCode != 0 {
		t.Errorf("partition 0 code: got %d", commit.Partitions[0].ErrorCode)
	}
	if commit.Partitions[1].ErrorCode != int16(coordinator.CodeOffsetOutOfRange) {
		t.Errorf("partition 1 code: got %d", commit.Partitions[1].ErrorCode)
	}

	rec = doJSON(t, s, "GET", "/groups/g-1/offsets/orders/0", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("fetch status: %d", rec.Code)
	}
	var fetched committedOffsetResponse
	decodeBody(t, rec, &fetched)
	if fetched.Offset != 42 || fetched.Metadata != "cp" {
		t.Errorf("fetched: %+v", fetched)
	}

	rec = doJSON(t, s, "GET", "/groups/g-1/offsets/orders/1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("rejected partition must have no offset: status %d", rec.Code)
	}

	rec = doJSON(t, s, "GET", "/groups/g-1/offsets", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("group fetch status: %d", rec.Code)
	}
	var all struct {
		Offsets []committedOffsetResponse `json:"offsets"`
	}
	decodeBody(t, rec, &all)
	if len(all.Offsets) != 1 {
		t.Errorf("group offsets: got %d, want 1", len(all.Offsets))
	}
}

func TestServer_CommitOffsetsEmptyBody(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, "POST", "/groups/g-1/offsets", commitOffsetsRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", rec.Code)
	}
}

func TestServer_DeleteGroups(t *testing.T) {
	s := newTestServer(t)
	member := joinMember(t, s, "g-live")

	// g-live still has a member; g-gone never existed.
	rec := doJSON(t, s, "POST", "/groups/delete", deleteGroupsRequest{
		GroupIDs: []string{"g-live", "g-gone"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d body: %s", rec.Code, rec.Body.String())
	}
	var resp deleteGroupsResponse
	decodeBody(t, rec, &resp)
	if resp.Results[0].ErrorCode != int16(coordinator.CodeNonEmptyGroup) {
		t.Errorf("live group code: got %d", resp.Results[0].ErrorCode)
	}
	if resp.Results[1].ErrorCode != 0 {
		t.Errorf("unknown group deletes as no-op: got %d", resp.Results[1].ErrorCode)
	}

	// Leave, then the delete goes through.
	rec = doJSON(t, s, "POST", "/groups/g-live/heartbeat", heartbeatRequest{
		MemberID:    member.MemberID,
		MemberEpoch: -1,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("leave status: %d", rec.Code)
	}
	rec = doJSON(t, s, "POST", "/groups/delete", deleteGroupsRequest{GroupIDs: []string{"g-live"}})
	decodeBody(t, rec, &resp)
	if resp.Results[0].ErrorCode != 0 {
		t.Errorf("delete after leave: got %d", resp.Results[0].ErrorCode)
	}
}

func TestServer_PublishTopology(t *testing.T) {
	s := newTestServer(t)
	member := joinMember(t, s, "g-1")

	rec := doJSON(t, s, "POST", "/topology", topologyRequest{
		Version: 2,
		Topics:  []topologyTopic{{Name: "orders", Partitions: 8}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d body: %s", rec.Code, rec.Body.String())
	}

	// The member reconciles onto the bumped epoch.
	rec = doJSON(t, s, "POST", "/groups/g-1/heartbeat", heartbeatRequest{
		MemberID:         member.MemberID,
		MemberEpoch:      member.MemberEpoch,
		ClientID:         "client-1",
		SubscribedTopics: []string{"orders"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("heartbeat status: %d body: %s", rec.Code, rec.Body.String())
	}
	var resp heartbeatResponse
	decodeBody(t, rec, &resp)
	if resp.MemberEpoch != member.MemberEpoch+1 {
		t.Errorf("epoch after topology change: got %d, want %d", resp.MemberEpoch, member.MemberEpoch+1)
	}
}

func TestServer_Stats(t *testing.T) {
	s := newTestServer(t)
	joinMember(t, s, "g-1")

	rec := doJSON(t, s, "GET", "/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var body struct {
		Partitions []runtime.PartitionStats `json:"partitions"`
	}
	decodeBody(t, rec, &body)
	if len(body.Partitions) != 4 {
		t.Fatalf("partitions: got %d, want 4", len(body.Partitions))
	}
	groups := 0
	for _, p := range body.Partitions {
		groups += p.Groups
	}
	if groups != 1 {
		t.Errorf("groups: got %d, want 1", groups)
	}
}

func TestServer_MetricsEndpoint(t *testing.T) {
	reg := metrics.NewRegistry(metrics.Config{Enabled: true, Namespace: "test"})
	rt := runtime.New(nil, runtime.Config{Partitions: 1, HeartbeatIntervalMs: 1000}, reg)
	if err := rt.Load(nil); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	s := NewServer(rt, reg, nil, DefaultServerConfig())

	rec := doJSON(t, s, "GET", "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "test_coordinator_shards_loaded") {
		t.Errorf("metrics exposition missing coordinator gauges")
	}
}

func TestServer_ManyGroupsAcrossPartitions(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < 10; i++ {
		joinMember(t, s, fmt.Sprintf("group-%d", i))
	}

	rec := doJSON(t, s, "GET", "/stats", nil)
	var body struct {
		Partitions []runtime.PartitionStats `json:"partitions"`
	}
	decodeBody(t, rec, &body)
	groups := 0
	for _, p := range body.Partitions {
		groups += p.Groups
	}
	if groups != 10 {
		t.Errorf("groups: got %d, want 10", groups)
	}
}
