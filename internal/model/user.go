package model

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type UserProfile struct {
	UID      string `json:"uid"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	Disabled bool   `json:"disabled"`
}

func (u *UserProfile) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Actor is the identity a request acts on behalf of.
type Actor struct {
	UserID   string
	Role     Role
	Disabled bool
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type SetDisabledRequest struct {
	Disabled bool `json:"disabled"`
}

type UserListResponse struct {
	Users []UserProfile `json:"users"`
	Total int           `json:"total"`
}
