package models

// Player represents the authenticated account returned by login/register
type Player struct {
	ID       FlexID `json:"id"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

// AuthResponse is the data payload of login and register responses
type AuthResponse struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	Player       *Player `json:"player"`
}
