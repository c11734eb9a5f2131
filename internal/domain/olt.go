// Package domain holds the core data model shared by the scheduler, the
// poller pool, the execution lifecycle manager, and the chain coordinator.
package domain

// OLT is the external entity the scheduler reads. Full inventory management
// (ODF/fiber/ONU fields) lives outside the core; only the fields the
// scheduler and lifecycle manager need are modeled here.
type OLT struct {
	ID                      string
	Enabled                 bool
	Endpoint                SNMPEndpoint
	ConsecutiveFailureCount int
}

// SNMPEndpoint is opaque to the scheduler and poller pool; only the SNMP
// worker interprets it.
type SNMPEndpoint struct {
	Host      string
	Port      int
	Community string
	Version   string
}
