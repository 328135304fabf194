package handler

// --- Request types ---

type registerRequest struct {
	Email    string `json:"email"    validate:"required,email,max=255" example:"alice@example.com"`
	Password string `json:"password" validate:"required,min=8,max=72,strongpassword" example:"Str0ng!Pass"`
	Role     string `json:"role"     validate:"omitempty,oneof=user psychiatrist" example:"user" enums:"user,psychiatrist"`
}

type loginRequest struct {
	Email    string `json:"email"    validate:"required,email,max=255" example:"alice@example.com"`
	Password string `json:"password" validate:"required" example:"Str0ng!Pass"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type createAdminRequest struct {
	Email    string `json:"email"    validate:"required,email,max=255" example:"root@example.com"`
	Password string `json:"password" validate:"required,min=8,max=72,strongpassword" example:"Str0ng!Pass"`
}

type listAccountsQuery struct {
	Limit  int `query:"limit"  validate:"omitempty,min=1,max=100"`
	Offset int `query:"offset" validate:"omitempty,min=0"`
}

// --- Response types ---

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	IsActive  bool   `json:"isActive"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type tokensResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn" example:"24h"`
}

type authData struct {
	User   userResponse   `json:"user"`
	Tokens tokensResponse `json:"tokens"`
}

type tokensData struct {
	Tokens tokensResponse `json:"tokens"`
}

type userData struct {
	User userResponse `json:"user"`
}

type sessionData struct {
	Authenticated bool              `json:"authenticated"`
	User          *identityResponse `json:"user,omitempty"`
}

type identityResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type pagination struct {
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

type usersData struct {
	Users      []userResponse `json:"users"`
	Pagination pagination     `json:"pagination"`
}
