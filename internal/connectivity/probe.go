package connectivity

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"fieldsync/internal/config"
)

// DefaultSysfsRoot is where Linux exposes network interfaces.
const DefaultSysfsRoot = "/sys/class/net"

// Probe classifies the current network by reading sysfs.
type Probe struct {
	root     string
	wifi     []string
	cellular []string
	ethernet []string
}

// NewProbe builds a probe from the connectivity config section.
func NewProbe(cfg config.Connectivity) *Probe {
	return NewProbeAt(DefaultSysfsRoot, cfg)
}

// NewProbeAt reads interfaces under root instead of /sys/class/net.
func NewProbeAt(root string, cfg config.Connectivity) *Probe {
	return &Probe{
		root:     root,
		wifi:     cfg.WifiPatterns,
		cellular: cfg.CellularPatterns,
		ethernet: cfg.EthernetPatterns,
	}
}

// Classify returns the best class among interfaces that are up.
func (p *Probe) Classify() (Class, error) {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		return ClassNone, fmt.Errorf("read %s: %w", p.root, err)
	}
	best := ClassNone
	for _, entry := range entries {
		name := entry.Name()
		if name == "lo" || !p.isUp(name) {
			continue
		}
		if class := p.classifyInterface(name); class.Better(best) {
			best = class
		}
	}
	return best, nil
}

func (p *Probe) isUp(name string) bool {
	switch readTrimmed(filepath.Join(p.root, name, "operstate")) {
	case "up":
		return true
	case "unknown":
		// Point-to-point links such as ppp report unknown with a carrier.
		return readTrimmed(filepath.Join(p.root, name, "carrier")) == "1"
	default:
		return false
	}
}

// classifyInterface prefers what the kernel says about the device and falls
// back to the configured name patterns.
func (p *Probe) classifyInterface(name string) Class {
	dir := filepath.Join(p.root, name)
	if exists(filepath.Join(dir, "wireless")) || exists(filepath.Join(dir, "phy80211")) {
		return ClassWifi
	}
	switch strings.ToLower(ueventValue(filepath.Join(dir, "uevent"), "DEVTYPE")) {
	case "wlan":
		return ClassWifi
	case "wwan":
		return ClassCellular
	}
	switch {
	case matchAny(p.wifi, name):
		return ClassWifi
	case matchAny(p.cellular, name):
		return ClassCellular
	case matchAny(p.ethernet, name):
		return ClassEthernet
	default:
		return ClassNone
	}
}

func matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, err := path.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

func readTrimmed(file string) string {
	data, err := os.ReadFile(file)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func exists(file string) bool {
	_, err := os.Stat(file)
	return err == nil
}

func ueventValue(file, key string) string {
	f, err := os.Open(file)
	if err != nil {
		return ""
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	prefix := key + "="
	for scanner.Scan() {
		if line := scanner.Text(); strings.HasPrefix(line, prefix) {
			return strings.TrimPrefix(line, prefix)
		}
	}
	return ""
}
