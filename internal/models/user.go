package models

import "time"

// UserRole represents the available roles for the RBAC system.
// A role is fixed at account creation; no role-change operation exists.
type UserRole string

const (
	RoleAdmin           UserRole = "ADMIN"
	RoleChefDepartement UserRole = "CHEF_DEPARTEMENT"
	RoleEtudiant        UserRole = "ETUDIANT"
	RoleEncadrant       UserRole = "ENCADRANT"
	RoleJury            UserRole = "JURY"
)

// User represents an application user stored in the utilisateurs table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Nom          string     `db:"nom" json:"nom"`
	Prenom       string     `db:"prenom" json:"prenom"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Etudiant links a student account to its filiere.
type Etudiant struct {
	UserID    string `db:"user_id" json:"user_id"`
	FiliereID string `db:"filiere_id" json:"filiere_id"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	FiliereID string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// NewPagination normalises page values and builds pagination metadata.
func NewPagination(page, pageSize, total int) Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return Pagination{Page: page, PageSize: pageSize, TotalCount: total}
}
