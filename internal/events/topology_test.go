package events

import "testing"

func TestTopology_CanaryQueueBound(t *testing.T) {
	if RoutingKeyCanary == RoutingKeyChaos {
		t.Fatal("canary events must not share a routing key with chaos")
	}

	found := false
	for _, b := range auditBindings {
		if b.queue == QueueAuditCanary {
			found = true
			if b.key != RoutingKeyCanary {
				t.Errorf("canary queue bound to %q, expected %q", b.key, RoutingKeyCanary)
			}
		}
	}
	if !found {
		t.Error("canary queue missing from audit topology")
	}
}

func TestTopology_QueuesHaveDistinctKeys(t *testing.T) {
	seen := map[RoutingKey]Queue{}
	for _, b := range auditBindings {
		if prev, ok := seen[b.key]; ok {
			t.Errorf("routing key %q bound to both %q and %q", b.key, prev, b.queue)
		}
		seen[b.key] = b.queue
	}
}
