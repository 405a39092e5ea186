// Package mqtt provides MQTT client connectivity for the poweredup bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Last Will and Testament (LWT) for offline detection
//   - Topic builders for the poweredup layout (see Topics)
//
// # Architecture
//
//	LEGO hub ↔ BLE ↔ hub.Session ↔ bridge ↔ MQTT broker ↔ consumers
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) for brokers off the local host
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.PortValue("crane", 0)
//	client.PublishJSON(topic, sample, false)
package mqtt
