package domain

import "encoding/json"

// Roles understood by the storefront.
const (
	RoleCustomer = "customer"
	RoleSeller   = "seller"
	RolePartner  = "partner"
	RoleAdmin    = "admin"
)

// Identity is the denormalized user snapshot returned by the identity service at login.
type Identity struct {
	ID         string `json:"_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	IsApproved bool   `json:"isApproved"`

	// Extra keeps fields the storefront does not interpret so they survive a
	// persist and restore round trip.
	Extra map[string]json.RawMessage `json:"-"`
}

type plainIdentity Identity

var identityKeys = []string{"_id", "name", "email", "role", "isApproved"}

func (i Identity) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(plainIdentity(i))
	if err != nil || len(i.Extra) == 0 {
		return known, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(known, &fields); err != nil {
		return nil, err
	}
	for key, value := range i.Extra {
		if _, ok := fields[key]; !ok {
			fields[key] = value
		}
	}
	return json.Marshal(fields)
}

func (i *Identity) UnmarshalJSON(data []byte) error {
	var known plainIdentity
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	for _, key := range identityKeys {
		delete(fields, key)
	}
	known.Extra = nil
	if len(fields) > 0 {
		known.Extra = fields
	}
	*i = Identity(known)
	return nil
}

// Without returns a copy of the identity with the named extra fields removed.
func (i Identity) Without(keys ...string) Identity {
	if len(i.Extra) == 0 {
		return i
	}
	extra := make(map[string]json.RawMessage, len(i.Extra))
	for key, value := range i.Extra {
		extra[key] = value
	}
	for _, key := range keys {
		delete(extra, key)
	}
	i.Extra = nil
	if len(extra) > 0 {
		i.Extra = extra
	}
	return i
}

func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == RoleAdmin
}

func (i *Identity) IsPartner() bool {
	return i != nil && i.Role == RolePartner
}

// CanSell reports whether the identity may use the seller area.
func (i *Identity) CanSell() bool {
	if i == nil {
		return false
	}
	return i.Role == RolePartner || (i.Role == RoleSeller && i.IsApproved)
}

// Credentials are submitted to the identity service on login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Profile is submitted on signup and admin creation.
type Profile struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// Grant is a successful identity-service exchange.
type Grant struct {
	Token    string
	Identity Identity
}
