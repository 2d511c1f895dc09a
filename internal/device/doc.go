// Package device provides the Device Registry for FOTA Core.
//
// The registry is the authoritative catalogue of fleet devices. Devices
// enter it either through an explicit Register call or by publishing
// their first status or version message (auto-discovery); the two paths
// share one constructor and differ only in the Provenance flag.
//
// # Architecture
//
//	inbound MQTT ──▶ UpsertFromStatus / UpsertFromVersion ─┐
//	HTTP API     ──▶ Register                              ├──▶ Store ──▶ SQLite | Redis | memory
//	                                                       └──▶ Broadcaster ("device_update")
//
// # Usage
//
//	reg := device.NewRegistry(device.NewSQLiteStore(db.DB), hub)
//	reg.SetLogger(logger)
//
//	d, err := reg.UpsertFromStatus(ctx, "aa:bb:cc:dd:ee:ff", device.StatusOnline)
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use.
package device
