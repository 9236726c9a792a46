package models

import "time"

// TimeLayout is the wall-clock format used for soutenance slots.
const TimeLayout = "15:04"

// DateLayout is the calendar format used for soutenance dates.
const DateLayout = "2006-01-02"

// Soutenance is a scheduled defense: one binome, one salle, two distinct
// jury members, at a (date, heure) slot.
type Soutenance struct {
	ID        string    `db:"id" json:"id"`
	Date      time.Time `db:"date" json:"date"`
	Heure     string    `db:"heure" json:"heure"`
	SalleID   string    `db:"salle_id" json:"salle_id"`
	BinomeID  string    `db:"binome_id" json:"binome_id"`
	Jury1ID   string    `db:"jury1_id" json:"jury1_id"`
	Jury2ID   string    `db:"jury2_id" json:"jury2_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// HasJury reports whether the user sits on this soutenance as jury1 or jury2.
func (s *Soutenance) HasJury(userID string) bool {
	return s.Jury1ID == userID || s.Jury2ID == userID
}
