// Package telemetry turns inbound device messages into registry updates.
//
// Parse classifies a broker topic; the Ingestor subscribes to the device
// status and version patterns, applies each message to the registry and,
// when configured, records it as time-series history.
//
//	device/{id}/status   payload "online" | "offline"
//	device/{id}/version  payload free-form version string
//
// Topics with fewer than three levels and unknown kinds are dropped
// without touching the registry.
package telemetry
