package models

// =============================================================================
// OTA reports
// =============================================================================

// OTAStage is the lifecycle stage of a firmware update.
type OTAStage string

const (
	OTAStageProgress OTAStage = "OTA Progress"
	OTAStageSuccess  OTAStage = "OTA Success"
	OTAStageError    OTAStage = "OTA Error"
)

// OTAStatusRecord is the decoded payload of an OTA report. It is never persisted.
type OTAStatusRecord struct {
	ID            string   `json:"id"`
	Status        OTAStage `json:"status"`
	Progress      int      `json:"progress"`
	Chip          string   `json:"chip,omitempty"`
	GitVersion    string   `json:"git_version,omitempty"`
	ConfigVersion string   `json:"config_version,omitempty"`
	ErrorReason   *string  `json:"error_reason,omitempty"`
}
