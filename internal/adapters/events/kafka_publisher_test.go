package events

import "testing"

func TestKafkaPublisher_TopicRouting(t *testing.T) {
	pub, err := NewKafkaPublisher([]string{"localhost:9092"}, map[string]string{
		"listings.created":   "listing-sync.mutations",
		"listings.refreshed": "",
	})
	if err != nil {
		t.Fatalf("NewKafkaPublisher: %v", err)
	}
	defer pub.Close()

	if got := pub.topicFor("listings.created"); got != "listing-sync.mutations" {
		t.Fatalf("topic = %q, want the configured mapping", got)
	}
	// Blank and absent mappings both fall back to the event type itself.
	if got := pub.topicFor("listings.refreshed"); got != "listings.refreshed" {
		t.Fatalf("topic = %q, want fallback for blank mapping", got)
	}
	if got := pub.topicFor("listings.deleted"); got != "listings.deleted" {
		t.Fatalf("topic = %q, want fallback for unmapped event", got)
	}
}

func TestNewKafkaPublisher_RequiresBrokers(t *testing.T) {
	if _, err := NewKafkaPublisher(nil, nil); err == nil {
		t.Fatal("expected an error with no brokers")
	}
}
