// Package ble connects to LWP3 hubs over Bluetooth Low Energy.
//
// It wraps tinygo.org/x/bluetooth: Adapter scans for adverts carrying the
// LEGO manufacturer id and connects to a chosen hub; Conn exposes the hub's
// LPF2 characteristic as a hub.Transport, delivering each notification as
// one frame on its event channel.
//
//	adapter, err := ble.Open(ble.Config{ScanTimeout: 10 * time.Second})
//	found, err := adapter.Discover(ctx, hub.Filter{Name: "Technic Hub"})
//	conn, err := adapter.Connect(ctx, found[0])
//	session, err := hub.Connect(ctx, conn, hub.Options{})
package ble
