// Package command dispatches firmware update instructions to devices.
//
// A dispatch publishes up to two messages on device/{id}/command:
//
//	{"type":"ota_url","url":"http://host/fw.bin"}      immediately
//	{"type":"assets_url","url":"http://host/assets"}   after the assets delay
//
// # Ordering
//
// When both URLs are given the firmware message is published first and the
// assets message is scheduled on a timer measured from the Dispatch call
// (500ms by default). This is a weak guarantee. Publishes are fire-and-forget
// at QoS 0 by default, the device never acknowledges either message, and
// neither the broker nor the network is bound to deliver them in the order
// they were sent. A device that needs both must tolerate either order.
//
// The deferred publish is never cancelled. Drain waits for outstanding ones
// during shutdown.
package command
