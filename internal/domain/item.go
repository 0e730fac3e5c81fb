package domain

// ServiceKind is the laundry service requested for a line item.
type ServiceKind string

const (
	ServiceMachineWash ServiceKind = "MACHINE_WASH"
	ServiceHandWash    ServiceKind = "HAND_WASH"
	ServiceDryClean    ServiceKind = "DRY_CLEAN"
	ServiceIroning     ServiceKind = "IRONING"
)

var allowedServiceKinds = [...]ServiceKind{
	ServiceMachineWash, ServiceHandWash, ServiceDryClean, ServiceIroning,
}

// Valid checks if the ServiceKind is known.
func (k ServiceKind) Valid() bool {
	for _, v := range allowedServiceKinds {
		if k == v {
			return true
		}
	}
	return false
}

// RequiresMachine reports whether the service is done on machines.
func (k ServiceKind) RequiresMachine() bool {
	return k == ServiceMachineWash || k == ServiceDryClean
}

// CatalogItem is a priced product in the item catalog.
type CatalogItem struct {
	ProductKey  string
	CategoryKey string
	Name        string
	NormalPrice Money
	Discount    Money
	InStock     bool
	ServiceKind ServiceKind
}

// UnitPrice is the normal price minus the discount, never below zero.
func (c CatalogItem) UnitPrice() Money {
	p := c.NormalPrice - c.Discount
	if p < 0 {
		return 0
	}
	return p
}

// LineItem is one immutable position of an order.
type LineItem struct {
	ProductKey  string      `json:"product_key"`
	CategoryKey string      `json:"category_key"`
	Quantity    int         `json:"quantity"`
	UnitPrice   Money       `json:"unit_price"`
	ServiceKind ServiceKind `json:"service_kind"`
}

// Total is UnitPrice × Quantity.
func (l LineItem) Total() Money {
	return l.UnitPrice * Money(l.Quantity)
}
