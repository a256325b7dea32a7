package metrics

import (
	"sync"
	"time"
)

// Admission outcomes
const (
	OutcomeAllowed  = "allowed"
	OutcomeBlocked  = "blocked"
	OutcomeDegraded = "degraded"
)

/* AdmissionStats collects in-process signup admission statistics */
type AdmissionStats struct {
	mu sync.RWMutex

	TotalRequests    int64
	AdmittedRequests int64
	RejectedRequests int64

	// tier -> outcome -> count
	TierOutcomes map[string]map[string]int64

	LastDegradedTier string
	LastDegradedAt   time.Time
	LastDegradedErr  string

	Since time.Time
	now   func() time.Time
}

var globalStats = NewAdmissionStats()

/* NewAdmissionStats creates a new statistics instance */
func NewAdmissionStats() *AdmissionStats {
	return &AdmissionStats{
		TierOutcomes: make(map[string]map[string]int64),
		Since:        time.Now(),
		now:          time.Now,
	}
}

/* GetGlobalStats returns the process-wide statistics instance */
func GetGlobalStats() *AdmissionStats {
	return globalStats
}

/* RecordTier records one tier decision */
func (s *AdmissionStats) RecordTier(tier, outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcomes, ok := s.TierOutcomes[tier]
	if !ok {
		outcomes = make(map[string]int64)
		s.TierOutcomes[tier] = outcomes
	}
	outcomes[outcome]++
}

/* RecordDegraded records a ledger failure on a tier */
func (s *AdmissionStats) RecordDegraded(tier string, err error) {
	s.RecordTier(tier, OutcomeDegraded)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastDegradedTier = tier
	s.LastDegradedAt = s.now()
	if err != nil {
		s.LastDegradedErr = err.Error()
	}
}

/* RecordDecision records the final gate decision for a request */
func (s *AdmissionStats) RecordDecision(admitted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalRequests++
	if admitted {
		s.AdmittedRequests++
	} else {
		s.RejectedRequests++
	}
}

/* GetStats returns current statistics */
func (s *AdmissionStats) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tiers := make(map[string]map[string]int64, len(s.TierOutcomes))
	for tier, outcomes := range s.TierOutcomes {
		copied := make(map[string]int64, len(outcomes))
		for k, v := range outcomes {
			copied[k] = v
		}
		tiers[tier] = copied
	}

	stats := map[string]interface{}{
		"requests": map[string]interface{}{
			"total":    s.TotalRequests,
			"admitted": s.AdmittedRequests,
			"rejected": s.RejectedRequests,
		},
		"tiers": tiers,
		"since": s.Since.UTC().Format(time.RFC3339),
	}
	if s.LastDegradedTier != "" {
		stats["last_degraded"] = map[string]interface{}{
			"tier":  s.LastDegradedTier,
			"at":    s.LastDegradedAt.UTC().Format(time.RFC3339),
			"error": s.LastDegradedErr,
		}
	}
	return stats
}

/* Reset resets all statistics */
func (s *AdmissionStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.TotalRequests = 0
	s.AdmittedRequests = 0
	s.RejectedRequests = 0
	s.TierOutcomes = make(map[string]map[string]int64)
	s.LastDegradedTier = ""
	s.LastDegradedAt = time.Time{}
	s.LastDegradedErr = ""
	s.Since = s.now()
}
