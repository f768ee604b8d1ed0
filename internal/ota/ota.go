// Package ota interprets firmware update reports published by devices.
//
// A report is in one of three stages. OTA Progress carries 0..100; the
// terminal stages OTA Success and OTA Error always carry 100. Each valid
// report maps to exactly one notification intent.
package ota

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Misakaka10086/IoT-Platform/internal/models"
)

var (
	ErrInvalidPayload  = errors.New("invalid OTA payload")
	ErrInvalidProgress = errors.New("invalid OTA progress")
	ErrUnknownStage    = errors.New("unknown OTA stage")
)

// IntentKind selects the notification a report produces.
type IntentKind int

const (
	IntentProgress IntentKind = iota + 1
	IntentSuccess
	IntentError
)

func (k IntentKind) String() string {
	switch k {
	case IntentProgress:
		return "progress"
	case IntentSuccess:
		return "success"
	case IntentError:
		return "error"
	}
	return "unknown"
}

// Intent is the single notification derived from a report.
type Intent struct {
	Kind     IntentKind
	DeviceID string
	// Progress is formatted as "{progress}%" and only set for IntentProgress.
	Progress string
	Report   models.OTAStatusRecord
}

// rawReport keeps required fields as pointers so absence is detectable.
type rawReport struct {
	ID            *string          `json:"id"`
	Status        *models.OTAStage `json:"status"`
	Progress      *int             `json:"progress"`
	Chip          string           `json:"chip"`
	GitVersion    string           `json:"git_version"`
	ConfigVersion string           `json:"config_version"`
	ErrorReason   *string          `json:"error_reason"`
}

// Interpret parses payload and validates the stage and progress.
func Interpret(payload string) (Intent, error) {
	rec, err := Parse(payload)
	if err != nil {
		return Intent{}, err
	}
	if err := Validate(rec); err != nil {
		return Intent{}, err
	}

	intent := Intent{DeviceID: rec.ID, Report: rec}
	switch rec.Status {
	case models.OTAStageProgress:
		intent.Kind = IntentProgress
		intent.Progress = fmt.Sprintf("%d%%", rec.Progress)
	case models.OTAStageSuccess:
		intent.Kind = IntentSuccess
	case models.OTAStageError:
		intent.Kind = IntentError
	}
	return intent, nil
}

// Parse decodes payload without checking the stage rules.
func Parse(payload string) (models.OTAStatusRecord, error) {
	var raw rawReport
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return models.OTAStatusRecord{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	switch {
	case raw.ID == nil:
		return models.OTAStatusRecord{}, fmt.Errorf("%w: missing field \"id\"", ErrInvalidPayload)
	case raw.Status == nil:
		return models.OTAStatusRecord{}, fmt.Errorf("%w: missing field \"status\"", ErrInvalidPayload)
	case raw.Progress == nil:
		return models.OTAStatusRecord{}, fmt.Errorf("%w: missing field \"progress\"", ErrInvalidPayload)
	}

	return models.OTAStatusRecord{
		ID:            *raw.ID,
		Status:        *raw.Status,
		Progress:      *raw.Progress,
		Chip:          raw.Chip,
		GitVersion:    raw.GitVersion,
		ConfigVersion: raw.ConfigVersion,
		ErrorReason:   raw.ErrorReason,
	}, nil
}

// Validate enforces the progress range for the record's stage.
func Validate(rec models.OTAStatusRecord) error {
	switch rec.Status {
	case models.OTAStageProgress:
		if rec.Progress < 0 || rec.Progress > 100 {
			return fmt.Errorf("%w: %q requires 0..100, got %d", ErrInvalidProgress, rec.Status, rec.Progress)
		}
	case models.OTAStageSuccess, models.OTAStageError:
		if rec.Progress != 100 {
			return fmt.Errorf("%w: %q requires 100, got %d", ErrInvalidProgress, rec.Status, rec.Progress)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStage, rec.Status)
	}
	return nil
}
