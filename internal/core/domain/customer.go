package domain

import "time"

// Customer is read-only from the order engine's perspective.
type Customer struct {
	ID        string
	TaxID     string
	Name      string
	CreatedAt time.Time
	DeletedAt *time.Time
}

func (c *Customer) Active() bool {
	return c.DeletedAt == nil
}
