package models

import "time"

// PairingStatus is the lifecycle state of a binome request.
// Transitions are monotone: PENDING moves to ACCEPTED or REJECTED, never back.
type PairingStatus string

const (
	PairingStatusPending  PairingStatus = "PENDING"
	PairingStatusAccepted PairingStatus = "ACCEPTED"
	PairingStatusRejected PairingStatus = "REJECTED"
)

// PairingRequest is a directed binome proposal from one student to another
// (demande binome). At most one pending row exists per ordered
// (requester, target) pair.
type PairingRequest struct {
	ID          string        `db:"id" json:"id"`
	RequesterID string        `db:"demandeur_id" json:"demandeur_id"`
	TargetID    string        `db:"demande_id" json:"demande_id"`
	Status      PairingStatus `db:"statut" json:"statut"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}
