// Package mqtt provides the broker connection for FOTA Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - An explicit Disconnected → Connecting → Connected → Subscribed
//     state machine observable via State and SetOnStateChange
//   - Handler registration that survives reconnects
//   - Retained presence and Last Will on fota/system/status
//
// Devices publish on device/{id}/status and device/{id}/version and
// receive update commands on device/{id}/command.
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT)
//	client.SetLogger(logger)
//	_ = client.Subscribe(mqtt.Topics{}.AllDeviceStatus(), 1, handleStatus)
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close()
//
// # Security Considerations
//
//   - Enable TLS (mqtt.broker.tls) for any broker reachable off-host
//   - Anonymous access is only for local development
package mqtt
