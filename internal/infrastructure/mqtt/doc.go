// Package mqtt provides MQTT client connectivity for Gray Logic Gate.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Waited and fire-and-forget publishing
//   - Topic subscriptions, restored after reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The broker carries two kinds of traffic. Gate commands go to smart-plug
// firmware on the plug's own topic (Tasmota convention, e.g. cmnd/gate/POWER).
// Gray Logic Gate also announces its own status and the committed gate state
// under graygate/{site}/... so home automation can follow along.
//
// # Security Considerations
//
//   - Anyone able to publish on the plug's command topic can open the gate.
//     Lock the topic down with broker ACLs and use TLS outside a closed LAN.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Site.ID)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.PublishAsync("cmnd/gate/POWER", []byte("TOGGLE"), 1, false)
package mqtt
