package models

import "time"

// Binome is a finalized student pair, or a solo unit when Student2ID is nil.
// A student appears in at most one binome system-wide; the pairing service
// enforces that invariant, not the schema.
type Binome struct {
	ID          string    `db:"id" json:"id"`
	Student1ID  string    `db:"etudiant1_id" json:"etudiant1_id"`
	Student2ID  *string   `db:"etudiant2_id" json:"etudiant2_id,omitempty"`
	EncadrantID *string   `db:"encadrant_id" json:"encadrant_id,omitempty"`
	SujetID     *string   `db:"sujet_id" json:"sujet_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Solo reports whether the binome has a single member.
func (b *Binome) Solo() bool {
	return b.Student2ID == nil
}

// Contains reports whether the given student belongs to the binome.
func (b *Binome) Contains(studentID string) bool {
	if b.Student1ID == studentID {
		return true
	}
	return b.Student2ID != nil && *b.Student2ID == studentID
}
