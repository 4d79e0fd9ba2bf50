// Package tasks defines the asynq task types shared by the API server and
// the maintenance worker.
package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TypeMaintenanceSweep = "maintenance:sweep"

// SweepPayload configures one maintenance pass.
type SweepPayload struct {
	// Completed sessions untouched for longer than this many days are purged.
	SessionRetentionDays int `json:"session_retention_days"`
}

func NewMaintenanceSweepTask(retentionDays int) (*asynq.Task, error) {
	payload, err := json.Marshal(SweepPayload{SessionRetentionDays: retentionDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeMaintenanceSweep, payload), nil
}
