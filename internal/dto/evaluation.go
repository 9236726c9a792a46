package dto

// RecordNoteRequest is a jury member's grade for one soutenance.
type RecordNoteRequest struct {
	Note        int     `json:"note"`
	Commentaire *string `json:"commentaire,omitempty"`
}

// NoteItem is a recorded soutenance grade with its author.
type NoteItem struct {
	ID          string    `json:"id"`
	Jury        PersonRef `json:"jury"`
	Note        int       `json:"note"`
	Commentaire *string   `json:"commentaire,omitempty"`
}

// SoutenanceNotes aggregates the jury grades of one soutenance.
type SoutenanceNotes struct {
	SoutenanceID string     `json:"soutenanceId"`
	Notes        []NoteItem `json:"notes"`
	Average      *float64   `json:"average,omitempty"`
}

// GradeRapportRequest sets the evaluation of a submitted rapport.
type GradeRapportRequest struct {
	Note        int     `json:"note"`
	Commentaire *string `json:"commentaire,omitempty"`
}

// RapportItem is the submitted report as seen by students and evaluators.
type RapportItem struct {
	ID          string  `json:"id"`
	BinomeID    string  `json:"binomeId"`
	Titre       string  `json:"titre"`
	Note        *int    `json:"note,omitempty"`
	Commentaire *string `json:"commentaire,omitempty"`
	SubmittedAt string  `json:"submittedAt"`
}
