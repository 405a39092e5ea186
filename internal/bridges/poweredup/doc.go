// Package poweredup bridges a connected LEGO hub to MQTT.
//
// Outbound, the bridge publishes:
//
//	poweredup/{hub}/state              hub properties (retained)
//	poweredup/{hub}/notice             alerts, actions, errors, attach/detach
//	poweredup/{hub}/health             bridge health (retained)
//	poweredup/{hub}/ack                command acknowledgements
//	poweredup/{hub}/port/{port}/info   port record once ready (retained)
//	poweredup/{hub}/port/{port}/value  decoded value samples
//
// Inbound, it executes JSON commands from poweredup/{hub}/command and
// poweredup/{hub}/port/{port}/command.
//
// Value subscriptions come from configuration. The bridge starts each one
// when its port reports ready and stops it on detach, so a device can be
// unplugged and replaced while the bridge runs. Samples are also handed to
// any registered SampleSink (telemetry, the API's live stream).
//
// Each command is acknowledged on poweredup/{hub}/ack and, when a
// CommandLog is configured, recorded with its ack.
package poweredup
