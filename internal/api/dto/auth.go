package dto

// CredentialsRequest is the request body for signup and login.
type CredentialsRequest struct {
	Email    string `json:"email" maxLength:"254" doc:"User email address"`
	Password string `json:"password" maxLength:"1024" doc:"User password"`
}

// SignupInput wraps the signup request for huma.
type SignupInput struct {
	Body CredentialsRequest
}

// LoginInput wraps the login request for huma.
type LoginInput struct {
	Body CredentialsRequest
}

// SignupResponse is returned after a successful signup.
type SignupResponse struct {
	Message string `json:"message" doc:"Status message"`
	Token   string `json:"token" doc:"Bearer token, valid for one hour"`
	UserID  string `json:"userId" doc:"Created user ID"`
}

// SignupOutput wraps the signup response for huma.
type SignupOutput struct {
	Body SignupResponse
}

// LoginResponse is returned after a successful login.
type LoginResponse struct {
	Token  string `json:"token" doc:"Bearer token, valid for one hour"`
	UserID string `json:"userId" doc:"Authenticated user ID"`
}

// LoginOutput wraps the login response for huma.
type LoginOutput struct {
	Body LoginResponse
}
