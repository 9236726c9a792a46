package dto

// EtudiantStatus summarises where a student stands in the pairing lifecycle.
type EtudiantStatus struct {
	HasBinome          bool    `json:"hasBinome"`
	HasPendingRequests bool    `json:"hasPendingRequests"`
	HasRequestSent     bool    `json:"hasRequestSent"`
	BinomeID           *string `json:"binomeId,omitempty"`
	SujetID            *string `json:"sujetId,omitempty"`
	StatusMessage      string  `json:"statusMessage"`
}

// AvailableStudent is a pairing candidate from the same filiere.
type AvailableStudent struct {
	ID               string `json:"id"`
	Nom              string `json:"nom"`
	Prenom           string `json:"prenom"`
	Email            string `json:"email"`
	FiliereName      string `json:"filiereName"`
	AlreadyRequested bool   `json:"alreadyRequested"`
	CanRequest       bool   `json:"canRequest"`
}

// PairingRequestItem describes an incoming or outgoing request row.
type PairingRequestItem struct {
	ID              string `json:"id"`
	RequesterID     string `json:"demandeurId"`
	RequesterNom    string `json:"demandeurNom"`
	RequesterPrenom string `json:"demandeurPrenom"`
	RequesterEmail  string `json:"demandeurEmail"`
	TargetID        string `json:"demandeId"`
	FiliereName     string `json:"filiereName"`
	Status          string `json:"status"`
}

// BinomeSearch aggregates the pairing search surface for a student.
type BinomeSearch struct {
	AvailableStudents []AvailableStudent   `json:"availableStudents"`
	IncomingRequests  []PairingRequestItem `json:"incomingRequests"`
	OutgoingRequests  []PairingRequestItem `json:"outgoingRequests"`
}

// SendPairingRequest is the payload for proposing a binome to another student.
type SendPairingRequest struct {
	TargetID string `json:"demandeId" validate:"required"`
}

// RespondPairingRequest is the payload for accepting or rejecting a request.
type RespondPairingRequest struct {
	Accept bool `json:"accept"`
}

// PairingResult is the uniform outcome returned by pairing operations.
type PairingResult struct {
	Success  bool    `json:"success"`
	Message  string  `json:"message"`
	BinomeID *string `json:"binomeId,omitempty"`
}
