package model

import "time"

// EventKind names the lifecycle event an AuditRecord describes.
type EventKind string

const (
	EventKindStepStarted    EventKind = "Step Started"
	EventKindChunkCommitted EventKind = "Chunk Committed"
	EventKindItemSkipped    EventKind = "Item Skipped"
	EventKindChunkError     EventKind = "Chunk Error"
	EventKindStepFinished   EventKind = "Step Finished"
)

// String returns the string representation of the EventKind.
func (k EventKind) String() string {
	return string(k)
}

// AuditRecord is an append-only log entry describing one lifecycle event of a run.
// Its fields are unexported so a record cannot change after NewAuditRecord returns it.
type AuditRecord struct {
	jobName      string
	stepName     string
	kind         EventKind
	message      string
	itemSnapshot *string
	timestamp    time.Time
}

// NewAuditRecord creates an AuditRecord. snapshot may be nil when the event carries no item.
func NewAuditRecord(jobName, stepName string, kind EventKind, message string, snapshot *string, timestamp time.Time) AuditRecord {
	var s *string
	if snapshot != nil {
		v := *snapshot
		s = &v
	}
	return AuditRecord{
		jobName:      jobName,
		stepName:     stepName,
		kind:         kind,
		message:      message,
		itemSnapshot: s,
		timestamp:    timestamp,
	}
}

func (r AuditRecord) JobName() string      { return r.jobName }
func (r AuditRecord) StepName() string     { return r.stepName }
func (r AuditRecord) Kind() EventKind      { return r.kind }
func (r AuditRecord) Message() string      { return r.message }
func (r AuditRecord) Timestamp() time.Time { return r.timestamp }

// ItemSnapshot returns the serialized item and whether the record carries one.
func (r AuditRecord) ItemSnapshot() (string, bool) {
	if r.itemSnapshot == nil {
		return "", false
	}
	return *r.itemSnapshot, true
}
