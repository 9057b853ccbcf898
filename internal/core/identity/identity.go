// Package identity supplies the user and household scope stamped on every
// version and sync event. Authentication is the host application's concern;
// the engine only needs to know who it is acting as.
package identity

import "time"

// Provider yields the current identity and clock.
type Provider interface {
	UserID() string
	UserName() string
	HouseholdID() string
	Now() time.Time
}

var _ Provider = (*Static)(nil)

// Static is a fixed identity, the common case for a signed-in device.
type Static struct {
	User      string
	Name      string
	Household string
}

func (s Static) UserID() string      { return s.User }
func (s Static) UserName() string    { return s.Name }
func (s Static) HouseholdID() string { return s.Household }
func (s Static) Now() time.Time      { return time.Now() }
