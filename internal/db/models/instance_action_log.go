// Package models - instance_action_log.go defines InstanceActionLog, the write-once record of
// one completed mutating operation on a compute instance.
package models

import "time"

// InstanceActionLog is one audit record. Records are appended once and never
// updated; the only permitted change is the logical SoftDeleted tombstone.
type InstanceActionLog struct {
	ID               string     `db:"id" json:"id"`
	Sequence         int64      `db:"seq" json:"-"`                              // insertion order, store-internal
	TargetID         string     `db:"target_id" json:"target_id"`                // instance UUID
	ActionKind       string     `db:"action_kind" json:"action_kind"`            // "create", "resize", "reboot", ...
	RequestingOrigin string     `db:"requesting_origin" json:"requesting_origin"` // caller address or NOT-FOUND
	ResultStatus     int        `db:"result_status" json:"result_status"`
	TenantID         string     `db:"tenant_id" json:"tenant_id"`
	ActorID          string     `db:"actor_id" json:"actor_id"`
	Detail           string     `db:"detail" json:"detail"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	SoftDeleted      bool       `db:"soft_deleted" json:"soft_deleted"`
	DeletedAt        *time.Time `db:"deleted_at" json:"deleted_at,omitempty"`
}
