package connectivity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pilebones/go-udev/netlink"
)

type scriptedProbe struct {
	mu      sync.Mutex
	classes []Class
	err     error
}

func (p *scriptedProbe) Classify() (Class, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return ClassWifi, p.err
	}
	class := p.classes[0]
	if len(p.classes) > 1 {
		p.classes = p.classes[1:]
	}
	return class, nil
}

func TestBuildMatcher(t *testing.T) {
	matcher := buildMatcher()
	if matcher == nil {
		t.Fatal("expected non-nil matcher")
	}
	for _, action := range []netlink.KObjAction{netlink.ADD, netlink.REMOVE, netlink.CHANGE} {
		event := netlink.UEvent{Action: action, Env: map[string]string{"SUBSYSTEM": "net", "INTERFACE": "wlan0"}}
		if !matcher.Evaluate(event) {
			t.Errorf("expected %s net event to match", action)
		}
	}
	block := netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "block"}}
	if matcher.Evaluate(block) {
		t.Error("expected block event rejected")
	}
}

func TestRefreshEmitsOnlyTransitions(t *testing.T) {
	probe := &scriptedProbe{classes: []Class{ClassWifi, ClassWifi, ClassCellular}}
	m := newMonitor(probe, 0, nil)
	changes := make(chan Class, 4)
	ctx := context.Background()

	m.refresh(ctx, changes, "startup")
	m.refresh(ctx, changes, "poll")
	m.refresh(ctx, changes, "netlink")

	close(changes)
	var got []Class
	for class := range changes {
		got = append(got, class)
	}
	if len(got) != 2 || got[0] != ClassWifi || got[1] != ClassCellular {
		t.Fatalf("expected [wifi cellular], got %v", got)
	}
	if m.Current() != ClassCellular {
		t.Fatalf("expected current cellular, got %s", m.Current())
	}
}

func TestRefreshTreatsProbeFailureAsOffline(t *testing.T) {
	probe := &scriptedProbe{err: errors.New("sysfs unreadable")}
	m := newMonitor(probe, 0, nil)
	m.current = ClassWifi
	changes := make(chan Class, 1)

	m.refresh(context.Background(), changes, "poll")
	if got := <-changes; got != ClassNone {
		t.Fatalf("expected none after probe failure, got %s", got)
	}
}
