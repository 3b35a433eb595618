package main

import (
	"fmt"

	"tutormarket/backend/internal/domain/user"
)

// claimsFor builds the custom claims the API reads for role.
func claimsFor(role string) (map[string]interface{}, error) {
	switch role {
	case user.RoleStudent, user.RoleTeacher:
		return map[string]interface{}{"role": role}, nil
	case user.RoleAdmin:
		return map[string]interface{}{"role": role, "admin": true}, nil
	default:
		return nil, fmt.Errorf("role must be one of student, teacher, admin (got %q)", role)
	}
}
