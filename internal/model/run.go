package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dandantas/pijob/internal/compute"
)

// Trigger values recorded on every run.
const (
	TriggerAPI      = "api"
	TriggerSchedule = "schedule"
	TriggerCLI      = "cli"
)

// RunRecord is the append-only history document written when a run ends.
type RunRecord struct {
	ID                  primitive.ObjectID `json:"-" bson:"_id,omitempty"`
	RunID               string             `json:"run_id" bson:"run_id"`
	CorrelationID       string             `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
	JobName             string             `json:"job_name" bson:"job_name"`
	Series              string             `json:"series" bson:"series"`
	Iterations          int                `json:"iterations" bson:"iterations"`
	IterationsCompleted int                `json:"iterations_completed" bson:"iterations_completed"`
	FinalValue          float64            `json:"final_value" bson:"final_value"`
	DurationMs          int64              `json:"duration_ms" bson:"duration_ms"`
	Status              compute.State      `json:"status" bson:"status"`
	Error               string             `json:"error,omitempty" bson:"error,omitempty"`
	TriggeredBy         string             `json:"triggered_by" bson:"triggered_by"`
	StartedAt           time.Time          `json:"started_at" bson:"started_at"`
	FinishedAt          time.Time          `json:"finished_at" bson:"finished_at"`
}

// NewRunRecord builds the history document for a finished run.
func NewRunRecord(status *RunStatus, out compute.Outcome, runErr error, finishedAt time.Time) *RunRecord {
	rec := &RunRecord{
		RunID:               status.RunID,
		CorrelationID:       status.CorrelationID,
		JobName:             out.JobName,
		Series:              status.Series,
		Iterations:          out.Iterations,
		IterationsCompleted: out.IterationsCompleted,
		FinalValue:          out.FinalValue,
		DurationMs:          out.Elapsed.Milliseconds(),
		Status:              out.State,
		TriggeredBy:         status.TriggeredBy,
		StartedAt:           status.StartedAt,
		FinishedAt:          finishedAt.UTC(),
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	return rec
}

// RunSummary is the list representation of a RunRecord.
type RunSummary struct {
	RunID               string  `json:"run_id"`
	JobName             string  `json:"job_name"`
	Status              string  `json:"status"`
	IterationsCompleted int     `json:"iterations_completed"`
	Iterations          int     `json:"iterations"`
	FinalValue          float64 `json:"final_value"`
	DurationMs          int64   `json:"duration_ms"`
	TriggeredBy         string  `json:"triggered_by"`
	FinishedAt          string  `json:"finished_at"`
}

func (r *RunRecord) ToSummary() RunSummary {
	var finishedAt string
	if !r.FinishedAt.IsZero() {
		finishedAt = r.FinishedAt.Format(time.RFC3339)
	}
	return RunSummary{
		RunID:               r.RunID,
		JobName:             r.JobName,
		Status:              string(r.Status),
		IterationsCompleted: r.IterationsCompleted,
		Iterations:          r.Iterations,
		FinalValue:          r.FinalValue,
		DurationMs:          r.DurationMs,
		TriggeredBy:         r.TriggeredBy,
		FinishedAt:          finishedAt,
	}
}
