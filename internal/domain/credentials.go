package domain

import "time"

// Credentials is the provider credential bundle. It is enough to rebuild an
// authenticated client without user interaction.
type Credentials struct {
	AccessToken  string    `json:"token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenURI     string    `json:"token_uri"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	Scopes       []string  `json:"scopes"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// AuthSession binds a browser session to a provider identity.
type AuthSession struct {
	SessionID         string
	OwnerEmail        string
	OwnerName         string
	Picture           string
	SealedCredentials []byte
	OAuthState        string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Authenticated reports whether the session holds credentials for an owner.
func (a *AuthSession) Authenticated() bool {
	return a != nil && a.OwnerEmail != "" && len(a.SealedCredentials) > 0
}

// User is a provider account that has signed in at least once.
type User struct {
	Email      string
	Name       string
	Picture    string
	LastSeenAt time.Time
	CreatedAt  time.Time
}
