package domain

import "laundry-dispatch/internal/geo"

// ProviderStatus is the operational status of a laundry provider.
type ProviderStatus string

const (
	ProviderActive    ProviderStatus = "ACTIVE"
	ProviderBusy      ProviderStatus = "BUSY"
	ProviderOffline   ProviderStatus = "OFFLINE"
	ProviderSuspended ProviderStatus = "SUSPENDED"
)

// Equipment is a set of provider capability bits.
type Equipment uint32

const (
	EquipWasher Equipment = 1 << iota
	EquipDryer
	EquipIron
	EquipDryCleaning
)

// HasMachine reports whether the provider owns any washing or dry-cleaning machine.
func (e Equipment) HasMachine() bool {
	return e&(EquipWasher|EquipDryer|EquipDryCleaning) != 0
}

// Provider is a laundry operator.
type Provider struct {
	ID                 int64
	Name               string
	Location           geo.Point
	ServiceRadiusKm    float64
	MaxDailyOrders     int
	CurrentLoad        int
	Rating             float64
	AvgCompletionHours float64
	CompletedOrders    int
	Equipment          Equipment
	Status             ProviderStatus
	Approved           bool
}

// Selectable reports whether the provider can take another order.
func (p Provider) Selectable() bool {
	return p.Approved && p.Status == ProviderActive && p.CurrentLoad < p.MaxDailyOrders
}

// Full reports whether the provider reached its daily capacity.
func (p Provider) Full() bool {
	return p.CurrentLoad >= p.MaxDailyOrders
}
