package services

import (
	"errors"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Liberatex/Rotation/internal/apperr"
	"github.com/Liberatex/Rotation/internal/ws"
)

// Fanout is the realtime gateway as the services see it: best-effort
// publication to a session's broadcast group. Delivery failures never
// propagate back into the request that triggered the event.
type Fanout interface {
	Broadcast(sessionID uint, evt ws.Event)
}

// mapErr passes typed business errors through untouched and collapses
// everything else (driver errors, constraint violations) into a generic
// internal failure so storage detail never reaches the caller.
func mapErr(err error, op string) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	logrus.WithError(err).WithField("op", op).Error("store operation failed")
	return apperr.New(apperr.KindInternal, "internal server error")
}

// lockForUpdate takes a row-level lock for the read-modify-write of a state
// transition. sqlite, used by the tests, has no FOR UPDATE; its single-writer
// transaction lock already serializes concurrent writers.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}
