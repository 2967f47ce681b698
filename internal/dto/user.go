package dto

// CreateUserRequest registers a user record. Credentials live in the
// external auth service; this only creates the reference row.
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	FullName string `json:"full_name" validate:"required,min=1,max=200"`
	Role     string `json:"role" validate:"required,oneof=ADMIN BIOSTATISTICIAN PROGRAMMER REVIEWER"`
}
