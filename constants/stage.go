package constants

// Stage is a pipeline run state. Values appear verbatim in logs and metrics.
type Stage string

const (
	StageReceived    Stage = "RECEIVED"
	StageNormalizing Stage = "NORMALIZING"
	StageExtracting  Stage = "EXTRACTING"
	StageParsing     Stage = "PARSING"
	StageResolving   Stage = "RESOLVING"
	StageCompleted   Stage = "COMPLETED"
	StageFailed      Stage = "FAILED" // terminal; the failing stage is logged alongside
)
