package users

import "time"

// Role define los roles soportados.
type Role string

const (
	RolePatient Role = "patient"
	RoleNurse   Role = "nurse"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleNurse, RoleAdmin:
		return true
	}
	return false
}

// Privileged indica si el rol puede operar sobre recursos de otros usuarios.
func (r Role) Privileged() bool {
	return r == RoleNurse || r == RoleAdmin
}

// User representa una cuenta del sistema.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role

	CreatedAt time.Time
	UpdatedAt time.Time
}
