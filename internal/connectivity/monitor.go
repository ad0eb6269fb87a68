package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"fieldsync/internal/logging"
)

// classifier is satisfied by *Probe.
type classifier interface {
	Classify() (Class, error)
}

// Monitor watches udev netlink events for network devices and re-probes on
// each one. A poll timer covers link changes udev does not report and is the
// only signal when the netlink socket cannot be opened.
type Monitor struct {
	probe    classifier
	logger   *slog.Logger
	interval time.Duration

	mu      sync.Mutex
	current Class
	conn    *netlink.UEventConn
}

// NewMonitor builds a monitor around probe. interval <= 0 disables polling.
func NewMonitor(probe *Probe, interval time.Duration, logger *slog.Logger) *Monitor {
	return newMonitor(probe, interval, logger)
}

func newMonitor(probe classifier, interval time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		probe:    probe,
		logger:   logging.NewComponentLogger(logger, "netlink-monitor"),
		interval: interval,
		current:  ClassNone,
	}
}

// Current returns the last observed class.
func (m *Monitor) Current() Class {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Run probes once, then emits every class transition until ctx is done.
func (m *Monitor) Run(ctx context.Context, changes chan<- Class) error {
	m.refresh(ctx, changes, "startup")

	events := make(chan netlink.UEvent)
	errs := make(chan error)
	var monitorQuit chan struct{}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		logging.WarnWithContext(m.logger, "failed to connect to netlink socket; falling back to polling", "netlink_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "ensure the daemon may open netlink sockets"),
			logging.String(logging.FieldImpact, "connectivity changes are noticed on the poll interval only"),
		)
	} else {
		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()
		monitorQuit = conn.Monitor(events, errs, buildMatcher())
		m.logger.Info("netlink monitor started",
			logging.String(logging.FieldEventType, "netlink_monitor_started"),
		)
		defer m.close(monitorQuit)
	}

	var tick <-chan time.Time
	if m.interval > 0 {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case uevent := <-events:
			m.logger.Debug("network device event",
				logging.String("action", string(uevent.Action)),
				logging.String("interface", uevent.Env["INTERFACE"]),
			)
			m.refresh(ctx, changes, "netlink")
		case err := <-errs:
			m.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "connectivity changes may be noticed late"),
			)
		case <-tick:
			m.refresh(ctx, changes, "poll")
		}
	}
}

func (m *Monitor) close(monitorQuit chan struct{}) {
	close(monitorQuit)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.logger.Info("netlink monitor stopped",
		logging.String(logging.FieldEventType, "netlink_monitor_stopped"),
	)
}

// refresh re-probes and emits the class when it changed.
func (m *Monitor) refresh(ctx context.Context, changes chan<- Class, trigger string) {
	class, err := m.probe.Classify()
	if err != nil {
		m.logger.Warn("connectivity probe failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "connectivity_probe_failed"),
			logging.String(logging.FieldErrorHint, "check that /sys/class/net is readable"),
			logging.String(logging.FieldImpact, "device treated as offline"),
		)
		class = ClassNone
	}

	m.mu.Lock()
	previous := m.current
	m.current = class
	m.mu.Unlock()

	if class == previous && trigger != "startup" {
		return
	}
	m.logger.Info("connectivity changed",
		logging.String(logging.FieldEventType, "connectivity_changed"),
		logging.String("from", string(previous)),
		logging.String("to", string(class)),
		logging.String("trigger", trigger),
	)
	select {
	case changes <- class:
	case <-ctx.Done():
	}
}

// buildMatcher matches add, remove and state changes of network devices.
func buildMatcher() netlink.Matcher {
	action := "add|remove|change|move|online|offline"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "net",
		},
	})
	return rules
}
