package dto

// LoginRequest is the JSON form of a login attempt.
type LoginRequest struct {
	Email    string `json:"email" jsonschema:"minLength=1"`
	Password string `json:"password" jsonschema:"minLength=1"`
}

// TokenResponse is returned by a successful login.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}
