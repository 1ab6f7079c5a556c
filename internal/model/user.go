package model

import "time"

// Account roles stored in users.role.
const (
    RoleHost  = "HOST"
    RoleAdmin = "ADMIN"
    RoleGuest = "GUEST"
)

// User represents an application user record as stored in the `users`
// table.  Only the columns the pricing engine needs are mapped; profile
// and verification data belong to other parts of the application.
//
// Fields:
//  ID        – primary key identifier of the user.
//  Email     – unique email address.
//  Role      – HOST, ADMIN or GUEST.
//  IsActive  – whether the account is active.
//  CreatedAt – timestamp of creation.
//  UpdatedAt – timestamp of last update.
type User struct {
    ID        uint64    // users.id
    Email     string    // users.email
    Role      string    // users.role
    IsActive  bool      // users.is_active
    CreatedAt time.Time // users.created_at
    UpdatedAt time.Time // users.updated_at
}

// CanAddMarkup reports whether the account is a host-type account allowed
// to define markups.  Inactive accounts never qualify.
func (u User) CanAddMarkup() bool {
    if !u.IsActive {
        return false
    }
    return u.Role == RoleHost || u.Role == RoleAdmin
}
