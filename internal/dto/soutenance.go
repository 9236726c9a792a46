package dto

// SoutenanceRequest is the shared payload for creating or updating a
// soutenance. Field names mirror the planning UI contract.
type SoutenanceRequest struct {
	Date     string `json:"date"`
	Heure    string `json:"heure"`
	SalleID  string `json:"salleId"`
	BinomeID string `json:"binomeId"`
	Jury1ID  string `json:"jury1Id"`
	Jury2ID  string `json:"jury2Id"`
}

// FieldError tags a validation message with the offending field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationResponse is the scheduling validator verdict. Valid is true iff
// Errors is empty.
type ValidationResponse struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors"`
}

// AddError appends a field-tagged validation message.
func (v *ValidationResponse) AddError(field, message string) {
	v.Errors = append(v.Errors, FieldError{Field: field, Message: message})
}

// SoutenanceItem is the planning projection returned by list/get endpoints.
type SoutenanceItem struct {
	ID          string    `json:"id"`
	Date        string    `json:"date"`
	Heure       string    `json:"heure"`
	Salle       SalleRef  `json:"salle"`
	Binome      BinomeRef `json:"binome"`
	Jury1       PersonRef `json:"jury1"`
	Jury2       PersonRef `json:"jury2"`
	FiliereName string    `json:"filiereName,omitempty"`
}

// SalleRef is a light salle reference.
type SalleRef struct {
	ID  string `json:"id"`
	Nom string `json:"nom"`
}

// PersonRef is a light user reference.
type PersonRef struct {
	ID     string `json:"id"`
	Nom    string `json:"nom"`
	Prenom string `json:"prenom"`
}

// BinomeRef describes the binome on a planning row.
type BinomeRef struct {
	ID        string     `json:"id"`
	Etudiant1 PersonRef  `json:"etudiant1"`
	Etudiant2 *PersonRef `json:"etudiant2,omitempty"`
	Encadrant *PersonRef `json:"encadrant,omitempty"`
	Sujet     *SujetRef  `json:"sujet,omitempty"`
}

// SujetRef is a light sujet reference.
type SujetRef struct {
	ID    string `json:"id"`
	Titre string `json:"titre"`
}
