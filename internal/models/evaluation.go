package models

import "time"

// NoteMax is the upper bound of the grading scale.
const NoteMax = 20

// NoteSoutenance is one jury member's grade for a soutenance. Each jury
// member records at most one note per soutenance; re-recording overwrites.
type NoteSoutenance struct {
	ID           string    `db:"id" json:"id"`
	SoutenanceID string    `db:"soutenance_id" json:"soutenance_id"`
	JuryID       string    `db:"jury_id" json:"jury_id"`
	Note         int       `db:"note" json:"note"`
	Commentaire  *string   `db:"commentaire" json:"commentaire,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Rapport is the PFE report a binome hands in. The file lives on the upload
// store; Note and Commentaire stay nil until an evaluator grades it.
type Rapport struct {
	ID          string    `db:"id" json:"id"`
	BinomeID    string    `db:"binome_id" json:"binome_id"`
	Titre       string    `db:"titre" json:"titre"`
	FilePath    string    `db:"localisation_rapport" json:"-"`
	Note        *int      `db:"note" json:"note,omitempty"`
	Commentaire *string   `db:"commentaire" json:"commentaire,omitempty"`
	SubmittedBy string    `db:"submitted_by" json:"submitted_by"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
