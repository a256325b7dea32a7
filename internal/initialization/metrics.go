package initialization

import (
	"time"

	"github.com/weddingdesk/api/internal/logging"
)

/* BootstrapMetrics tracks bootstrap performance metrics */
type BootstrapMetrics struct {
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
	StepDurations   map[string]time.Duration
	TotalSteps      int
	SuccessfulSteps int
	FailedSteps     int
}

/* NewBootstrapMetrics creates a new metrics tracker */
func NewBootstrapMetrics() *BootstrapMetrics {
	return &BootstrapMetrics{
		StartTime:     time.Now(),
		StepDurations: make(map[string]time.Duration),
	}
}

/* Finish marks the bootstrap as complete and calculates final metrics */
func (bm *BootstrapMetrics) Finish() {
	bm.EndTime = time.Now()
	bm.Duration = bm.EndTime.Sub(bm.StartTime)
}

/* SuccessRate is the share of tracked steps that succeeded, in percent */
func (bm *BootstrapMetrics) SuccessRate() float64 {
	if bm.TotalSteps == 0 {
		return 0
	}
	return float64(bm.SuccessfulSteps) / float64(bm.TotalSteps) * 100
}

/* LogMetrics logs the bootstrap metrics */
func (bm *BootstrapMetrics) LogMetrics(logger *logging.Logger) {
	fields := map[string]interface{}{
		"total_duration":   bm.Duration.String(),
		"total_steps":      bm.TotalSteps,
		"successful_steps": bm.SuccessfulSteps,
		"failed_steps":     bm.FailedSteps,
		"success_rate":     bm.SuccessRate(),
	}
	for name, d := range bm.StepDurations {
		fields[name+"_duration"] = d.String()
	}
	logger.Info("Bootstrap metrics", fields)
}

/* TrackStep tracks a step execution */
func (bm *BootstrapMetrics) TrackStep(name string, duration time.Duration, success bool) {
	bm.TotalSteps++
	if success {
		bm.SuccessfulSteps++
	} else {
		bm.FailedSteps++
	}
	bm.StepDurations[name] = duration
}
