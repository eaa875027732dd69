package flow

import "time"

// BulkStatus is the aggregate outcome of one bulk verb application.
type BulkStatus string

const (
	BulkAllSucceeded BulkStatus = "all-succeeded"
	BulkPartial      BulkStatus = "partial"
	BulkAllFailed    BulkStatus = "all-failed"
)

// BulkResult is the outcome of applying a verb to one group member. A
// revision conflict is recorded with Conflict=true rather than aborting the
// job; Error preserves the remote message for any failure.
type BulkResult struct {
	EntityID string        `json:"entityId"           yaml:"entity_id"`
	Name     string        `json:"name,omitempty"     yaml:"name,omitempty"`
	Success  bool          `json:"success"            yaml:"success"`
	Conflict bool          `json:"conflict,omitempty" yaml:"conflict,omitempty"`
	Error    string        `json:"error,omitempty"    yaml:"error,omitempty"`
	Duration time.Duration `json:"duration"           yaml:"duration"`
}

// BulkJob aggregates the per-member outcomes of one bulk verb application.
// It is scoped to a single invocation and carries every member result in the
// order the members were listed.
type BulkJob struct {
	GroupID   string       `json:"groupId"   yaml:"group_id"`
	Verb      Verb         `json:"verb"      yaml:"verb"`
	Results   []BulkResult `json:"results"   yaml:"results"`
	Succeeded int          `json:"succeeded" yaml:"succeeded"`
	Conflicts int          `json:"conflicts" yaml:"conflicts"`
	Failed    int          `json:"failed"    yaml:"failed"`

	AggregateStatus BulkStatus `json:"aggregateStatus" yaml:"aggregate_status"`
}

// Finalize tallies the per-member results and sets the aggregate status.
// A job over zero members counts as all-succeeded.
func (j *BulkJob) Finalize() {
	j.Succeeded = 0
	j.Conflicts = 0
	j.Failed = 0

	for _, result := range j.Results {
		switch {
		case result.Success:
			j.Succeeded++
		case result.Conflict:
			j.Conflicts++
			j.Failed++
		default:
			j.Failed++
		}
	}

	switch {
	case j.Failed == 0:
		j.AggregateStatus = BulkAllSucceeded
	case j.Succeeded == 0:
		j.AggregateStatus = BulkAllFailed
	default:
		j.AggregateStatus = BulkPartial
	}
}

// FailedIDs lists the entity IDs whose member operation did not succeed, in
// result order.
func (j *BulkJob) FailedIDs() []string {
	var ids []string

	for _, result := range j.Results {
		if !result.Success {
			ids = append(ids, result.EntityID)
		}
	}

	return ids
}

// ConflictIDs lists the entity IDs that failed with a revision conflict.
func (j *BulkJob) ConflictIDs() []string {
	var ids []string

	for _, result := range j.Results {
		if result.Conflict {
			ids = append(ids, result.EntityID)
		}
	}

	return ids
}
