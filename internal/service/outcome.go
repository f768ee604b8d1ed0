package service

import (
	"time"

	"github.com/Misakaka10086/IoT-Platform/internal/models"
)

// Stage names a step of the ingestion pipeline.
type Stage string

const (
	StageNormalize Stage = "normalize"
	StageFilter    Stage = "filter"
	StageResolve   Stage = "resolve"
	StageInterpret Stage = "interpret"
	StagePersist   Stage = "persist"
	StagePresence  Stage = "presence"
	StageNotify    Stage = "notify"
)

// StageResult records how one stage ended. Channel is set for notify stages.
type StageResult struct {
	Stage    Stage
	Channel  string
	Err      error
	Skipped  bool
	Duration time.Duration
}

func (r StageResult) OK() bool { return r.Err == nil }

// Outcome aggregates the stages of one event. The broker is acknowledged
// whatever the stages report.
type Outcome struct {
	Kind     models.EventKind
	DeviceID string
	Status   models.Status
	Filtered bool
	Message  string
	Stages   []StageResult
}

func (o *Outcome) add(r StageResult) {
	o.Stages = append(o.Stages, r)
}

// Failed returns the stages that reported an error.
func (o *Outcome) Failed() []StageResult {
	var failed []StageResult
	for _, s := range o.Stages {
		if !s.OK() {
			failed = append(failed, s)
		}
	}
	return failed
}

// Stage returns the first result recorded for s.
func (o *Outcome) Stage(s Stage) (StageResult, bool) {
	for _, r := range o.Stages {
		if r.Stage == s {
			return r, true
		}
	}
	return StageResult{}, false
}

// Response is the acknowledgement body for the broker.
func (o *Outcome) Response() models.WebhookResponse {
	if o.Filtered || o.Kind == models.KindMessagePublish {
		return models.WebhookResponse{Success: true, Message: o.Message}
	}
	return models.WebhookResponse{
		Success:  true,
		DeviceID: o.DeviceID,
		Status:   string(o.Status),
		Message:  o.Message,
	}
}
