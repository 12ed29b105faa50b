// Package databus carries operation payloads between host and device.
//
// Ownership boundary:
// - accepting one host connection at a time and replacing it on failure
// - payload delimiting (u16 length prefix or checksummed frames)
// - the inbound frame buffer that decoded views borrow from
// - response encoding onto the same wire
package databus
