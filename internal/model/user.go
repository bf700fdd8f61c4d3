// internal/model/user.go
package model

// User is a campaign recipient. Users are static reference data.
type User struct {
	ID    int      `db:"id" json:"id"`
	Name  string   `db:"name" json:"name"`
	Email string   `db:"email" json:"email"`
	Tags  []string `db:"tags" json:"tags"`
}

// HasTag reports whether tag is one of the user's tags (exact match).
func (u User) HasTag(tag string) bool {
	for _, t := range u.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
