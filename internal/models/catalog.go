package models

import "time"

// Filiere is the academic track a student belongs to. It scopes which
// students and sujets are visible to each other during pairing and selection.
type Filiere struct {
	ID           string `db:"id" json:"id"`
	Nom          string `db:"nom" json:"nom"`
	Abbreviation string `db:"abbreviation" json:"abbreviation"`
}

// Salle is a defense room.
type Salle struct {
	ID  string `db:"id" json:"id"`
	Nom string `db:"nom" json:"nom"`
}

// Sujet is a PFE subject offered to binomes of a filiere. Once attached to a
// binome it is no longer available to others.
type Sujet struct {
	ID          string    `db:"id" json:"id"`
	Titre       string    `db:"titre" json:"titre"`
	Theme       string    `db:"theme" json:"theme"`
	Description string    `db:"description" json:"description"`
	FiliereID   string    `db:"filiere_id" json:"filiere_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// SujetProposal is a sujet suggested by a binome, waiting for chef approval.
type SujetProposal struct {
	ID          string    `db:"id" json:"id"`
	BinomeID    string    `db:"binome_id" json:"binome_id"`
	Titre       string    `db:"titre" json:"titre"`
	Theme       string    `db:"theme" json:"theme"`
	Description string    `db:"description" json:"description"`
	Status      string    `db:"statut" json:"statut"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Sujet proposal states.
const (
	SujetProposalPending  = "PENDING"
	SujetProposalAccepted = "ACCEPTED"
	SujetProposalRejected = "REJECTED"
)
