package hkvac

// AccessoryAdded is raised when a reconciliation pass creates a local
// accessory for a newly matched remote accessory.
type AccessoryAdded struct {
	Identifier string
	Aid        uint64
}

// AccessoryRemoved is raised when a reconciliation pass retires a local
// accessory whose remote counterpart disappeared.
type AccessoryRemoved struct {
	Identifier string
}
