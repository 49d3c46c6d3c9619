package users

// CreateUserRequest is the payload for POST /api/users.
type CreateUserRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Email    string `json:"email" validate:"required,email,max=255"`
	FullName string `json:"fullName" validate:"required,max=200"`
	RoleID   int64  `json:"roleId" validate:"required,gt=0"`
}

// UpdateUserRequest is the partial payload for PUT /api/users/{id}.
type UpdateUserRequest struct {
	Username *string `json:"username,omitempty" validate:"omitempty,min=3,max=50"`
	Password *string `json:"password,omitempty" validate:"omitempty,min=8,max=72"`
	Email    *string `json:"email,omitempty" validate:"omitempty,email,max=255"`
	FullName *string `json:"fullName,omitempty" validate:"omitempty,min=1,max=200"`
	RoleID   *int64  `json:"roleId,omitempty" validate:"omitempty,gt=0"`
}

// Empty reports whether the request changes nothing.
func (r UpdateUserRequest) Empty() bool {
	return r.Username == nil && r.Password == nil && r.Email == nil && r.FullName == nil && r.RoleID == nil
}
