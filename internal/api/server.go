// =============================================================================
// HTTP API - THE COORDINATOR'S CLIENT-FACING SURFACE
// =============================================================================
//
// Thin handlers over the shard runtime: decode, delegate, encode. All group
// semantics live below; the API's own decisions are only the HTTP error
// mapping and the JSON shapes.
//
// ROUTES:
//
//   GET    /health                                    liveness
//   GET    /stats                                     per-partition state sizes
//   GET    /metrics                                   Prometheus exposition
//   POST   /groups/{groupID}/heartbeat                join/leave/steady heartbeat
//   POST   /groups/{groupID}/offsets                  commit offsets
//   GET    /groups/{groupID}/offsets                  all committed offsets
//   GET    /groups/{groupID}/offsets/{topic}/{part}   one committed offset
//   POST   /groups/delete                             batch delete
//   POST   /topology                                  publish a metadata image
//
// =============================================================================

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jimbogithub/kafka/internal/coordinator"
	"github.com/jimbogithub/kafka/internal/metrics"
	"github.com/jimbogithub/kafka/internal/runtime"
)

// Server is the coordinator's HTTP server.
type Server struct {
	runtime    *runtime.Runtime
	reg        *metrics.Registry
	httpServer *http.Server
	router     *chi.Mux
	logger     *slog.Logger
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:         ":8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewServer wires the HTTP surface to the shard runtime. reg may be nil to
// serve without a /metrics endpoint.
func NewServer(rt *runtime.Runtime, reg *metrics.Registry, logger *slog.Logger, config ServerConfig) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	s := &Server{
		runtime: rt,
		reg:     reg,
		router:  r,
		logger:  logger.With("component", "api"),
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      r,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/stats", s.handleStats)
	if s.reg != nil {
		s.router.Get("/metrics", s.reg.Handler().ServeHTTP)
	}

	s.router.Route("/groups", func(r chi.Router) {
		r.Post("/delete", s.deleteGroups)

		r.Route("/{groupID}", func(r chi.Router) {
			r.Post("/heartbeat", s.heartbeat)
			r.Post("/offsets", s.commitOffsets)
			r.Get("/offsets", s.getGroupOffsets)
			r.Get("/offsets/{topic}/{partition}", s.getOffset)
		})
	})

	s.router.Post("/topology", s.publishTopology)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWrapper{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start).String(),
		)
	})
}

type responseWrapper struct {
	http.ResponseWriter
	status int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// =============================================================================
// SERVER LIFECYCLE
// =============================================================================

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// =============================================================================
// HEALTH & STATS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"partitions": s.runtime.NumPartitions(),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"partitions": s.runtime.Stats(),
	})
}

// =============================================================================
// HEARTBEAT
// =============================================================================

type heartbeatRequest struct {
	MemberID           string   `json:"member_id"`
	MemberEpoch        int32    `json:"member_epoch"`
	InstanceID         string   `json:"instance_id,omitempty"`
	RebalanceTimeoutMs int32    `json:"rebalance_timeout_ms,omitempty"`
	SubscribedTopics   []string `json:"subscribed_topics,omitempty"`
	ClientID           string   `json:"client_id,omitempty"`
}

type heartbeatResponse struct {
	MemberID            string               `json:"member_id"`
	MemberEpoch         int32                `json:"member_epoch"`
	HeartbeatIntervalMs int32                `json:"heartbeat_interval_ms"`
	Assignment          []assignedPartitions `json:"assignment,omitempty"`
}

type assignedPartitions struct {
	Topic      string  `json:"topic"`
	Partitions []int32 `json:"partitions"`
}

func (s *Server) heartbeat(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := s.runtime.ConsumerGroupHeartbeat(r.Context(), &coordinator.HeartbeatRequest{
		GroupID:            groupID,
		MemberID:           req.MemberID,
		MemberEpoch:        req.MemberEpoch,
		InstanceID:         req.InstanceID,
		RebalanceTimeoutMs: req.RebalanceTimeoutMs,
		SubscribedTopics:   req.SubscribedTopics,
		ClientID:           req.ClientID,
		ClientHost:         r.RemoteAddr,
	})
	if err != nil {
		s.coordinatorError(w, err)
		return
	}

	out := heartbeatResponse{
		MemberID:            resp.MemberID,
		MemberEpoch:         resp.MemberEpoch,
		HeartbeatIntervalMs: resp.HeartbeatIntervalMs,
	}
	for _, tp := range resp.Assignment {
		out.Assignment = append(out.Assignment, assignedPartitions{
			Topic:      tp.Topic,
			Partitions: tp.Partitions,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// OFFSETS
// =============================================================================

type commitOffsetsRequest struct {
	MemberID     string              `json:"member_id,omitempty"`
	GenerationID int32               `json:"generation_id,omitempty"`
	Offsets      []commitOffsetEntry `json:"offsets"`
}

type commitOffsetEntry struct {
	Topic       string `json:"topic"`
	Partition   int32  `json:"partition"`
	Offset      int64  `json:"offset"`
	LeaderEpoch int32  `json:"leader_epoch,omitempty"`
	Metadata    string `json:"metadata,omitempty"`
}

type commitOffsetsResponse struct {
	Partitions []commitOffsetResult `json:"partitions"`
}

type commitOffsetResult struct {
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
	ErrorCode int16  `json:"error_code"`
}

func (s *Server) commitOffsets(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	var req commitOffsetsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Offsets) == 0 {
		s.errorResponse(w, http.StatusBadRequest, "offsets must not be empty")
		return
	}

	creq := &coordinator.OffsetCommitRequest{
		GroupID:      groupID,
		MemberID:     req.MemberID,
		GenerationID: req.GenerationID,
	}
	for _, o := range req.Offsets {
		creq.Offsets = append(creq.Offsets, coordinator.OffsetCommitPartition{
			Topic:       o.Topic,
			Partition:   o.Partition,
			Offset:      o.Offset,
			LeaderEpoch: o.LeaderEpoch,
			Metadata:    o.Metadata,
		})
	}

	resp, err := s.runtime.CommitOffset(r.Context(), creq)
	if err != nil {
		s.coordinatorError(w, err)
		return
	}

	out := commitOffsetsResponse{Partitions: make([]commitOffsetResult, len(resp.Partitions))}
	for i, p := range resp.Partitions {
		out.Partitions[i] = commitOffsetResult{
			Topic:     p.Topic,
			Partition: p.Partition,
			ErrorCode: int16(p.ErrorCode),
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

type committedOffsetResponse struct {
	Topic           string `json:"topic"`
	Partition       int32  `json:"partition"`
	Offset          int64  `json:"offset"`
	LeaderEpoch     int32  `json:"leader_epoch"`
	Metadata        string `json:"metadata,omitempty"`
	CommitTimestamp int64  `json:"commit_timestamp"`
}

func (s *Server) getOffset(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	topic := chi.URLParam(r, "topic")
	partition, err := strconv.ParseInt(chi.URLParam(r, "partition"), 10, 32)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid partition")
		return
	}

	offset, ok, err := s.runtime.FetchOffset(groupID, topic, int32(partition))
	if err != nil {
		s.coordinatorError(w, err)
		return
	}
	if !ok {
		s.errorResponse(w, http.StatusNotFound, "no committed offset")
		return
	}

	s.writeJSON(w, http.StatusOK, committedOffsetResponse{
		Topic:           topic,
		Partition:       int32(partition),
		Offset:          offset.Offset,
		LeaderEpoch:     offset.LeaderEpoch,
		Metadata:        offset.Metadata,
		CommitTimestamp: offset.CommitTimestamp,
	})
}

func (s *Server) getGroupOffsets(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	offsets, err := s.runtime.FetchGroupOffsets(groupID)
	if err != nil {
		s.coordinatorError(w, err)
		return
	}

	out := make([]committedOffsetResponse, len(offsets))
	for i, o := range offsets {
		out[i] = committedOffsetResponse{
			Topic:           o.Topic,
			Partition:       o.Partition,
			Offset:          o.Committed.Offset,
			LeaderEpoch:     o.Committed.LeaderEpoch,
			Metadata:        o.Committed.Metadata,
			CommitTimestamp: o.Committed.CommitTimestamp,
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"offsets": out})
}

// =============================================================================
// DELETE GROUPS
// =============================================================================

type deleteGroupsRequest struct {
	GroupIDs []string `json:"group_ids"`
}

type deleteGroupsResponse struct {
	Results []deleteGroupResult `json:"results"`
}

type deleteGroupResult struct {
	GroupID   string `json:"group_id"`
	ErrorCode int16  `json:"error_code"`
}

func (s *Server) deleteGroups(w http.ResponseWriter, r *http.Request) {
	var req deleteGroupsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	results, err := s.runtime.DeleteGroups(r.Context(), req.GroupIDs)
	if err != nil {
		s.coordinatorError(w, err)
		return
	}

	out := deleteGroupsResponse{Results: make([]deleteGroupResult, len(results))}
	for i, res := range results {
		out.Results[i] = deleteGroupResult{
			GroupID:   res.GroupID,
			ErrorCode: int16(res.ErrorCode),
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// TOPOLOGY
// =============================================================================

type topologyRequest struct {
	Version int64           `json:"version"`
	Topics  []topologyTopic `json:"topics"`
}

type topologyTopic struct {
	Name       string `json:"name"`
	Partitions int32  `json:"partitions"`
}

func (s *Server) publishTopology(w http.ResponseWriter, r *http.Request) {
	var req topologyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	image := &coordinator.MetadataImage{
		Version: req.Version,
		Topics:  make(map[string]coordinator.TopicImage, len(req.Topics)),
	}
	for _, t := range req.Topics {
		image.Topics[t.Name] = coordinator.TopicImage{Name: t.Name, Partitions: t.Partitions}
	}

	if err := s.runtime.OnNewMetadataImage(image); err != nil {
		s.coordinatorError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"version": req.Version})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// coordinatorError maps runtime and entity errors onto HTTP status codes.
// The numeric protocol code rides along so clients keep one error table.
func (s *Server) coordinatorError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, runtime.ErrShardFenced), errors.Is(err, runtime.ErrNotLoaded):
		status = http.StatusServiceUnavailable
	case errors.Is(err, coordinator.ErrInvalidGroupID):
		status = http.StatusBadRequest
	case errors.Is(err, coordinator.ErrGroupNotFound), errors.Is(err, coordinator.ErrUnknownMember):
		status = http.StatusNotFound
	case errors.Is(err, coordinator.ErrStaleMemberEpoch),
		errors.Is(err, coordinator.ErrIllegalGeneration),
		errors.Is(err, coordinator.ErrNonEmptyGroup):
		status = http.StatusConflict
	}

	s.writeJSON(w, status, map[string]interface{}{
		"error":      err.Error(),
		"error_code": int16(coordinator.CodeFor(err)),
	})
}
