// Package connectivity classifies the device's network as none, Wi-Fi,
// cellular or ethernet and reports transitions.
//
// Probe reads /sys/class/net; Monitor re-probes on udev netlink events for
// the net subsystem with a poll fallback; Static pins a class for tests or
// the connectivity.force_class setting.
package connectivity
