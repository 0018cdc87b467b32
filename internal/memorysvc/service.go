// Package memorysvc implements MemoryService: the single-writer background
// orchestrator that turns conversation turns into verified memory entries,
// regenerates the user profile, and produces debounced conversation
// summaries. Grounded on the teacher's pkg/cron (debounce timer discipline)
// and pkg/connector's memory_manager.go (single-actor state ownership).
package memorysvc

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/osaurus/memory-core/internal/config"
	"github.com/osaurus/memory-core/internal/memerr"
	"github.com/osaurus/memory-core/internal/modelservice"
	"github.com/osaurus/memory-core/internal/search"
	"github.com/osaurus/memory-core/internal/store"
)

// Service is the memory core's single logical actor: all public methods
// are expected to be called under the caller's own serialization (a
// single goroutine per agent, or an external mutex), per spec §5.
type Service struct {
	st     *store.Store
	search *search.Service
	router *modelservice.Router
	local  []modelservice.Service
	remote []modelservice.Service

	breaker *modelservice.CircuitBreaker
	cfg     config.Resolved
	log     zerolog.Logger

	mu                  sync.Mutex
	activeConversation  map[string]string // agent_id -> conversation_id
	debounceTimers      map[string]*time.Timer
	profileRegenRunning bool

	extractionQueue chan extractionJob
}

// extractionJob is one queued turn awaiting extraction (spec §4.7 steps
// 3-11), after its chunks and pending signal are already durable.
type extractionJob struct {
	agentID, conversationID string
	userMsg, assistantMsg   string
	sessionDate             *time.Time
	start                   time.Time
}

// extractionQueueCapacity bounds the backlog of turns awaiting extraction.
// A single worker drains the queue, giving the single global ordering of
// model-call issuance required by spec §5.
const extractionQueueCapacity = 4096

// New constructs a MemoryService and starts its background extraction
// worker. local/remote are the configured ModelServiceRouter candidates,
// local preferred.
func New(st *store.Store, searchSvc *search.Service, local, remote []modelservice.Service, cfg config.Resolved, log zerolog.Logger) *Service {
	s := &Service{
		st:                 st,
		search:             searchSvc,
		router:             modelservice.NewRouter(),
		local:              local,
		remote:             remote,
		breaker:            modelservice.NewCircuitBreaker(5, 60*time.Second),
		cfg:                cfg,
		log:                log.With().Str("component", "memorysvc").Logger(),
		activeConversation: make(map[string]string),
		debounceTimers:     make(map[string]*time.Timer),
		extractionQueue:    make(chan extractionJob, extractionQueueCapacity),
	}
	go s.runExtractionWorker()
	return s
}

// runExtractionWorker drains extractionQueue in arrival order, for the
// lifetime of the process. Per spec §7's propagation policy, a failed
// extraction is logged and never retried beyond the model-call retry
// budget baked into callModel; the pending signal it leaves behind is
// picked up by the next summary trigger instead.
func (s *Service) runExtractionWorker() {
	for job := range s.extractionQueue {
		ctx := context.Background()
		if err := s.extractAndApply(ctx, job.agentID, job.conversationID, job.userMsg, job.assistantMsg, job.sessionDate, job.start); err != nil {
			s.log.Warn().Err(err).Str("agent_id", job.agentID).Str("conversation_id", job.conversationID).Msg("extraction failed for turn")
		}
		s.regenerateProfileIfDue(ctx)
		s.handleSessionChange(job.agentID, job.conversationID)
	}
}

// callModel routes and executes a core-model generation under the
// retry/timeout/circuit-breaker contract (§4.7.2).
func (s *Service) callModel(ctx context.Context, req modelservice.Request) (*modelservice.Response, error) {
	route := s.router.Resolve(s.cfg.CoreModelProvider+"/"+s.cfg.CoreModelName, s.local, s.remote)
	if !route.Found {
		return nil, &memerr.CoreModelUnavailable{Model: s.cfg.CoreModelName, Err: errNoRouteForModel}
	}
	return modelservice.Call(ctx, route.Service, req, s.breaker)
}

var errNoRouteForModel = &routeNotFoundError{}

type routeNotFoundError struct{}

func (e *routeNotFoundError) Error() string { return "no registered ModelService claims this model" }

// cancelDebounceLocked stops and clears any pending debounce timer for a
// conversation. Caller must hold s.mu.
func (s *Service) cancelDebounceLocked(conversationID string) {
	if t, ok := s.debounceTimers[conversationID]; ok {
		t.Stop()
		delete(s.debounceTimers, conversationID)
	}
}

// armDebounceLocked schedules generate_conversation_summary after the
// configured debounce delay, cancelling any prior timer for the same
// conversation first. Caller must hold s.mu.
func (s *Service) armDebounceLocked(agentID, conversationID string) {
	s.cancelDebounceLocked(conversationID)
	delay := time.Duration(s.cfg.SummaryDebounceSeconds) * time.Second
	s.debounceTimers[conversationID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.debounceTimers, conversationID)
		s.mu.Unlock()
		ctx := context.Background()
		if err := s.GenerateConversationSummary(ctx, agentID, conversationID); err != nil {
			s.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("debounced summary generation failed")
		}
	})
}

// RecoverOrphanedSignals enumerates distinct (agent_id, conversation_id)
// pairs with pending signals at startup and generates their summaries
// sequentially, per spec §4.7's recover_orphaned_signals.
func (s *Service) RecoverOrphanedSignals(ctx context.Context) error {
	pairs, err := s.st.DistinctConversationsWithPendingSignals(ctx)
	if err != nil {
		return err
	}
	for _, pair := range pairs {
		agentID, conversationID := pair[0], pair[1]
		if err := s.GenerateConversationSummary(ctx, agentID, conversationID); err != nil {
			s.log.Warn().Err(err).Str("agent_id", agentID).Str("conversation_id", conversationID).Msg("orphaned signal recovery failed")
		}
	}
	return nil
}
