package lifecycle

import (
	"fmt"

	"laundry-dispatch/internal/apperr"
	"laundry-dispatch/internal/domain"
)

// Role is the kind of party acting on an order.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleProvider Role = "provider"
	RoleCourier  Role = "courier"
	RoleAdmin    Role = "admin"
)

// Actor is the authenticated party behind an action.
type Actor struct {
	Role Role
	ID   int64
}

// ParseRole validates a role coming from a transport.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleCustomer, RoleProvider, RoleCourier, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("role %q: %w", s, apperr.ErrInvalid)
	}
}

func requireProvider(o *domain.Order, providerID int64) error {
	if providerID <= 0 || o.ProviderID != providerID {
		return fmt.Errorf("provider %d on order %s: %w", providerID, o.ID, apperr.ErrForbidden)
	}
	return nil
}

func requireCourier(o *domain.Order, courierID int64) error {
	if courierID <= 0 || o.CourierID != courierID {
		return fmt.Errorf("courier %d on order %s: %w", courierID, o.ID, apperr.ErrForbidden)
	}
	return nil
}

// mayCancel: the customer, the bound provider or an admin.
func mayCancel(o *domain.Order, a Actor) error {
	switch {
	case a.Role == RoleAdmin:
		return nil
	case a.Role == RoleCustomer && a.ID > 0 && a.ID == o.CustomerID:
		return nil
	case a.Role == RoleProvider && a.ID > 0 && a.ID == o.ProviderID:
		return nil
	}
	return fmt.Errorf("%s %d may not cancel order %s: %w", a.Role, a.ID, o.ID, apperr.ErrForbidden)
}
