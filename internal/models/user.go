package models

// UserSummary is the public view of a user embedded in chat and message listings.
type UserSummary struct {
	ID          int64  `db:"id" json:"id"`
	DisplayName string `db:"display_name" json:"display_name"`
	AvatarURL   string `db:"avatar_url" json:"avatar_url,omitempty"`
	IsOnline    bool   `db:"-" json:"is_online"`
}
