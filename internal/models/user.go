package models

// UserRef is the display identity of a participant. Accounts are owned
// by the marketplace; this service only reads them for expansion.
type UserRef struct {
	ID        int    `db:"id" json:"id"`
	Username  string `db:"username" json:"username"`
	AvatarURL string `db:"avatar_url" json:"avatar_url,omitempty"`
}
