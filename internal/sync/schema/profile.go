package schema

// UserProfile is the public identity projection of a user, separate from the
// private auth session.
type UserProfile struct {
	UserID    uint   `json:"user_id" validate:"required"`
	Username  string `json:"username" validate:"required"`
	Name      string `json:"name"`
	AvatarURI string `json:"avatar_uri"`
}

// Session is the private auth session. IsReady is the onboarding-completion
// flag carried in the token's user metadata.
type Session struct {
	Token   string `json:"token" validate:"required"`
	UserID  uint   `json:"user_id" validate:"required"`
	IsReady bool   `json:"is_ready"`
}

// RegisterInput is what the registration form produces.
type RegisterInput struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name"`
}

// LoginInput is what the login form produces.
type LoginInput struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AvatarInput carries a base64-encoded image for upload.
type AvatarInput struct {
	Data string `json:"data" validate:"required"`
}
