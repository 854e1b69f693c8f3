package model

// UserRole 由外部认证服务签发在 token 中，本服务只做校验
type UserRole string

const (
	RoleUser     UserRole = "user"
	RoleReviewer UserRole = "reviewer"
	RoleAdmin    UserRole = "admin"
)

func (r UserRole) IsAdmin() bool {
	return r == RoleAdmin
}

func (r UserRole) CanReview() bool {
	return r == RoleReviewer || r == RoleAdmin
}
