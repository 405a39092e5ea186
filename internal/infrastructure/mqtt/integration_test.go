//go:build integration

package mqtt

import (
	"testing"
	"time"
)

// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func TestIntegration_MessageRoundtrip(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "poweredup-int-roundtrip"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	received := make(chan PortTopic, 1)
	err = client.Subscribe(Topics{}.AllPortCommands("int"), 1, func(topic string, _ []byte) error {
		pt, err := ParsePortTopic(topic)
		if err != nil {
			return err
		}
		received <- pt
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.HasSubscription(Topics{}.AllPortCommands("int")) {
		t.Error("subscription not tracked")
	}

	if err := client.PublishJSON(Topics{}.PortCommand("int", 2), map[string]string{"command": "start_power"}, false); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case pt := <-received:
		if pt.Port != 2 || pt.Leaf != LeafCommand {
			t.Errorf("received %+v", pt)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message")
	}

	if err := client.Unsubscribe(Topics{}.AllPortCommands("int")); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if client.Stats().Published == 0 {
		t.Error("Published counter not incremented")
	}
}

func TestIntegration_ConnectRefused(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 19999

	if _, err := Connect(cfg); err == nil {
		t.Fatal("Connect() expected error for closed port")
	}
}
