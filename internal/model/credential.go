package model

// UserContext is the personal information a password is checked against.
type UserContext struct {
	Name  string
	Email string
}

// PasswordValidation is the full policy verdict. Valid is true only when
// Issues is empty; the crack-time estimate is user-facing guidance, not a
// security control.
type PasswordValidation struct {
	Valid             bool     `json:"is_valid"`
	StrengthScore     int      `json:"strength_score"`
	Issues            []string `json:"issues"`
	Suggestions       []string `json:"suggestions"`
	CrackTimeEstimate string   `json:"estimated_crack_time"`
}
