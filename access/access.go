// Package access decides whether a caller may perform an operation.
// Guards take a Principal and return nil to allow or a Denial to refuse;
// they do not depend on the HTTP framework.
package access

import "rental-backend/models"

// Principal is the caller of a request.
type Principal struct {
	UserID        uint
	Authenticated bool
	Active        bool
	EmailVerified bool
	Status        string
	Type          string
	Superuser     bool
}

// FromUser builds the principal of an authenticated user.
func FromUser(u models.User) Principal {
	return Principal{
		UserID:        u.ID,
		Authenticated: true,
		Active:        u.IsActive,
		EmailVerified: u.EmailVerified,
		Status:        u.Status,
		Type:          u.Type,
		Superuser:     u.IsSuperuser,
	}
}

// Anonymous is the principal of an unauthenticated request.
var Anonymous = Principal{}

func (p Principal) IsAdmin() bool {
	return p.Authenticated && (p.Type == models.UserAdmin || p.Superuser)
}

// Denial explains why a guard refused.
type Denial struct {
	Code            string
	Message         string
	Unauthenticated bool
	Details         map[string]any
}

func (d *Denial) Error() string { return d.Message }

type Guard func(Principal) *Denial

func Authenticated(p Principal) *Denial {
	if !p.Authenticated {
		return &Denial{Code: "error.unauthenticated", Message: "Authentication credentials were not provided", Unauthenticated: true}
	}
	return nil
}

// Active requires an active account, a verified email and a completed profile.
func Active(p Principal) *Denial {
	if d := Authenticated(p); d != nil {
		return d
	}
	if !p.Active {
		return &Denial{Code: "error.accountInactive", Message: "Your account is not active"}
	}
	if !p.EmailVerified {
		return &Denial{Code: "error.emailNotVerified", Message: "Your email is not verified"}
	}
	if p.Status != models.ProfileComplete {
		return &Denial{
			Code:    "error.profileIncomplete",
			Message: "You have to complete the data completion process",
			Details: map[string]any{"userStatus": p.Status},
		}
	}
	return nil
}

func Admin(p Principal) *Denial {
	if d := Authenticated(p); d != nil {
		return d
	}
	if !p.IsAdmin() {
		return &Denial{Code: "error.notAdmin", Message: "Your account is not an admin account"}
	}
	return nil
}

func Superuser(p Principal) *Denial {
	if d := Authenticated(p); d != nil {
		return d
	}
	if !p.Superuser {
		return &Denial{Code: "error.forbidden", Message: "You do not have permission to perform this action"}
	}
	return nil
}

// SelfOrSuperuser allows the user identified by userID or a superuser.
func SelfOrSuperuser(userID uint) Guard {
	return func(p Principal) *Denial {
		if d := Authenticated(p); d != nil {
			return d
		}
		if p.Superuser || p.UserID == userID {
			return nil
		}
		return &Denial{Code: "error.forbidden", Message: "You do not have permission to perform this action"}
	}
}

// OwnerOrAdmin allows the owner of a resource or an admin. A resource with no
// owner can only be handled by admins.
func OwnerOrAdmin(ownerID *uint) Guard {
	return func(p Principal) *Denial {
		if d := Authenticated(p); d != nil {
			return d
		}
		if p.IsAdmin() || (ownerID != nil && *ownerID == p.UserID) {
			return nil
		}
		return &Denial{Code: "error.forbidden", Message: "You can only manage your own reservations"}
	}
}

// Check runs guards in order and returns the first denial.
func Check(p Principal, guards ...Guard) *Denial {
	for _, g := range guards {
		if d := g(p); d != nil {
			return d
		}
	}
	return nil
}
