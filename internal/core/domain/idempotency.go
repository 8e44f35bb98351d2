package domain

// IdempotencyRecord is what the key-value store keeps per idempotency
// key. While InFlight is true the original request has not finished and
// Status/Body are empty.
type IdempotencyRecord struct {
	Fingerprint string `json:"fingerprint"`
	InFlight    bool   `json:"in_flight"`
	Status      int    `json:"status,omitempty"`
	Body        []byte `json:"body,omitempty"`
}
