// internal/discovery/bridges.go
package discovery

import "strings"

// Bridge describes a USB chip that carries the ESP32 console
type Bridge struct {
	VendorID   string
	ProductID  string // empty matches every product of the vendor
	Name       string
	Confidence float64
}

// KnownBridges lists the USB-serial bridges found on ESP32 boards
var KnownBridges = []Bridge{
	{VendorID: "10c4", ProductID: "ea60", Name: "Silicon Labs CP210x", Confidence: 0.9},
	{VendorID: "1a86", ProductID: "7523", Name: "WCH CH340", Confidence: 0.85},
	{VendorID: "1a86", ProductID: "55d4", Name: "WCH CH9102", Confidence: 0.85},
	{VendorID: "303a", Name: "Espressif native USB", Confidence: 0.95},
	{VendorID: "0403", ProductID: "6001", Name: "FTDI FT232R", Confidence: 0.6},
	{VendorID: "0403", ProductID: "6010", Name: "FTDI FT2232", Confidence: 0.6},
}

// genericSerialConfidence is assigned to USB serial ports with an unknown bridge
const genericSerialConfidence = 0.3

// LookupBridge finds the bridge for a VID/PID pair. IDs are hex, with or without 0x.
func LookupBridge(vendorID, productID string) (Bridge, bool) {
	vendorID, productID = NormalizeID(vendorID), NormalizeID(productID)
	for _, b := range KnownBridges {
		if b.VendorID != vendorID {
			continue
		}
		if b.ProductID == "" || b.ProductID == productID {
			return b, true
		}
	}
	return Bridge{}, false
}

// Confidence returns how likely a USB serial port with this VID/PID is an ESP32
func Confidence(vendorID, productID string) float64 {
	if b, ok := LookupBridge(vendorID, productID); ok {
		return b.Confidence
	}
	return genericSerialConfidence
}

// NormalizeID lowercases a hex ID and strips a 0x prefix
func NormalizeID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	return strings.TrimPrefix(id, "0x")
}
