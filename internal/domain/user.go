package domain

import "time"

// User is a managed account record.
type User struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Age       *int       `json:"age,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// UserPatch carries the fields of a partial update. Nil fields are left untouched.
type UserPatch struct {
	Name  *string
	Email *string
	Age   *int
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.Name == nil && p.Email == nil && p.Age == nil
}

// Apply merges the patch over u and returns the result. u is not modified.
func (p UserPatch) Apply(u User) User {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Age != nil {
		age := *p.Age
		u.Age = &age
	}
	return u
}

// Clone returns a deep copy of u so callers never share pointer fields with a store.
func (u User) Clone() User {
	out := u
	if u.Age != nil {
		age := *u.Age
		out.Age = &age
	}
	if u.UpdatedAt != nil {
		ts := *u.UpdatedAt
		out.UpdatedAt = &ts
	}
	return out
}
