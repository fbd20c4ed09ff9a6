package dto

// ErrorResponse is the structured error body: a stable error code, a
// human-readable message, and optional field-level detail for validation
// failures.
type ErrorResponse struct {
	Error   string       `json:"error"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	Field   string       `json:"field,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func ValidationFailed(details []FieldError) ErrorResponse {
	return ErrorResponse{
		Error:   "Validation failed",
		Message: "Please fix the validation errors",
		Details: details,
	}
}

// InvalidCredentials deliberately does not reveal whether the identifier or
// the password was wrong.
func InvalidCredentials() ErrorResponse {
	return ErrorResponse{Error: "Invalid credentials", Message: "Username/email or password is incorrect"}
}

func AuthenticationRequired() ErrorResponse {
	return ErrorResponse{Error: "Authentication required", Message: "Access token is required"}
}

func InvalidToken() ErrorResponse {
	return ErrorResponse{Error: "Invalid token", Message: "The provided token is invalid or expired"}
}

func UserNotFound() ErrorResponse {
	return ErrorResponse{Error: "User not found", Message: "This user no longer exists"}
}

func AccessDenied() ErrorResponse {
	return ErrorResponse{Error: "Access denied", Message: "You do not have permission to perform this action"}
}

func AlreadyTaken(field string) ErrorResponse {
	return ErrorResponse{
		Error:   "User already exists",
		Message: "This " + field + " is already taken",
		Field:   field,
	}
}

func NotFound(resource string) ErrorResponse {
	return ErrorResponse{Error: "Not found", Message: resource + " does not exist"}
}

func InternalError() ErrorResponse {
	return ErrorResponse{Error: "Internal server error", Message: "An unexpected error occurred"}
}

func BadRequest(message string) ErrorResponse {
	return ErrorResponse{Error: "Bad request", Message: message}
}
