package models

import (
	"encoding/json"
	"time"
)

type Stage int

const (
	StagePending Stage = iota + 1
	StageApproved
	StageRejected
)

func (s Stage) String() string {
	switch s {
	case StagePending:
		return "pending"
	case StageApproved:
		return "approved"
	case StageRejected:
		return "rejected"
	}
	return "unknown"
}

func (s Stage) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// LifecycleState is the explicit form of what storage encodes positionally
// (approved_at null/non-null, row living in applications or rejected_applications).
type LifecycleState struct {
	Stage Stage
	At    *time.Time
	Note  string
}
