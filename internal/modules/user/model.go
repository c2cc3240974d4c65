// README: User record referenced by requests, trips, and the admin gate.
package user

import (
	"time"

	"bookferry/internal/types"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type User struct {
	ID          types.ID
	DisplayName string
	Role        Role
	Banned      bool
	CreatedAt   time.Time
}
