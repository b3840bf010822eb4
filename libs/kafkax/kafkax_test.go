package kafkax

import (
	"context"
	"testing"
)

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers: %#v", got)
	}
	if SplitBrokers("") != nil {
		t.Fatal("expected nil for empty broker list")
	}
}

func TestEventHeaders(t *testing.T) {
	headers := EventHeaders("evt-1", "booking.reservation.confirmed.v1")
	if HeaderValue(headers, "event_id") != "evt-1" {
		t.Fatalf("missing event_id header: %#v", headers)
	}
	if HeaderValue(headers, "event_type") != "booking.reservation.confirmed.v1" {
		t.Fatalf("missing event_type header: %#v", headers)
	}
	if HeaderValue(headers, "traceparent") != "" {
		t.Fatal("unexpected traceparent header")
	}
}

func TestReadyCheckWithoutBrokers(t *testing.T) {
	if err := ReadyCheck("")(context.Background()); err == nil {
		t.Fatal("expected error when brokers are not configured")
	}
}
