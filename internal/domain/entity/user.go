package entity

import "time"

// User is owned by the user-management service. The chat core only reads
// it for sender display and notification addressing.
type User struct {
	ID        string    `json:"id" firestore:"id"`
	Email     string    `json:"email" firestore:"email"`
	Username  string    `json:"username" firestore:"username"`
	FullName  string    `json:"full_name,omitempty" firestore:"fullName,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty" firestore:"avatarURL,omitempty"`
	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
}

func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}
