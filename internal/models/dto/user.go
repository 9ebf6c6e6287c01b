package dto

// RegisterRequest carries the fields accepted by POST /register.
type RegisterRequest struct {
	FullName      string  `json:"full_name" jsonschema:"minLength=1,maxLength=200"`
	Email         string  `json:"email" jsonschema:"format=email,maxLength=320"`
	Password      string  `json:"password" jsonschema:"minLength=1,maxLength=72"`
	IncomeProfile float64 `json:"income_profile" jsonschema:"minimum=0"`
	Coverage      string  `json:"coverage" jsonschema:"minLength=1,maxLength=64"`
	County        *string `json:"county,omitempty" jsonschema:"maxLength=120"`
}

// UpdateRequest carries the optional fields accepted by PUT /users/me.
// A nil field leaves the stored value untouched.
type UpdateRequest struct {
	FullName      *string  `json:"full_name,omitempty" jsonschema:"minLength=1,maxLength=200"`
	IncomeProfile *float64 `json:"income_profile,omitempty" jsonschema:"minimum=0"`
	Coverage      *string  `json:"coverage,omitempty" jsonschema:"minLength=1,maxLength=64"`
	County        *string  `json:"county,omitempty" jsonschema:"maxLength=120"`
	Password      *string  `json:"password,omitempty" jsonschema:"minLength=1,maxLength=72"`
}
