package audit

import "sync"

// MemorySink collects events in memory for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemorySink) Emit(event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of the collected events.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Names returns the collected event names in emission order.
func (m *MemorySink) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.events))
	for i, e := range m.events {
		names[i] = e.Name
	}
	return names
}
