package dto

// SujetItem describes a sujet offered to a filiere.
type SujetItem struct {
	ID          string `json:"id"`
	Titre       string `json:"titre"`
	Theme       string `json:"theme"`
	Description string `json:"description"`
	FiliereName string `json:"filiereName,omitempty"`
}

// AvailableSujets lists sujets a binome may still pick.
type AvailableSujets struct {
	Sujets []SujetItem `json:"sujets"`
}

// SelectSujetRequest picks a sujet for the caller's binome.
type SelectSujetRequest struct {
	SujetID string `json:"sujetId" validate:"required"`
}

// CreateSujetRequest registers a sujet in a filiere's catalog.
type CreateSujetRequest struct {
	Titre       string `json:"titre" validate:"required"`
	Theme       string `json:"theme" validate:"required"`
	Description string `json:"description" validate:"required"`
	FiliereID   string `json:"filiereId" validate:"required"`
}

// ProposeSujetRequest submits a sujet suggestion for chef approval.
type ProposeSujetRequest struct {
	Titre       string `json:"titre" validate:"required"`
	Theme       string `json:"theme" validate:"required"`
	Description string `json:"description" validate:"required"`
}

// BinomeSujet reports the binome/sujet attachment after a selection.
type BinomeSujet struct {
	BinomeID string    `json:"binomeId"`
	Sujet    SujetItem `json:"sujet"`
}
