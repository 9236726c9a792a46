package dto

import "github.com/estfbs/pfe-management-api/internal/models"

// CreateAccountRequest provisions a new user. The role is fixed at creation.
type CreateAccountRequest struct {
	Email     string          `json:"email" validate:"required,email"`
	Password  string          `json:"password" validate:"required,min=6"`
	Nom       string          `json:"nom" validate:"required"`
	Prenom    string          `json:"prenom" validate:"required"`
	Role      models.UserRole `json:"role" validate:"required,oneof=ADMIN CHEF_DEPARTEMENT ETUDIANT ENCADRANT JURY"`
	FiliereID string          `json:"filiereId,omitempty"`
}

// UpdateAccountRequest edits mutable account fields. Role is intentionally
// absent: roles never change after creation.
type UpdateAccountRequest struct {
	Email  *string `json:"email,omitempty" validate:"omitempty,email"`
	Nom    *string `json:"nom,omitempty"`
	Prenom *string `json:"prenom,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

// AccountItem is the admin-facing user projection.
type AccountItem struct {
	ID          string          `json:"id"`
	Email       string          `json:"email"`
	Nom         string          `json:"nom"`
	Prenom      string          `json:"prenom"`
	Role        models.UserRole `json:"role"`
	Active      bool            `json:"active"`
	FiliereName string          `json:"filiereName,omitempty"`
}
