package store

import (
	"testing"
	"time"
)

func TestPublishAssignsMonotonicCursors(t *testing.T) {
	feed := NewChangeFeed()
	sub := feed.Subscribe(4)
	defer feed.Unsubscribe(sub)

	feed.Publish(ChangeEvent{Topic: TopicIngest, ContractID: "c1"})
	feed.Publish(ChangeEvent{Topic: TopicIngest, ContractID: "c2"})

	first := <-sub.Events()
	second := <-sub.Events()

	if first.Cursor == 0 || second.Cursor == 0 {
		t.Fatalf("want non-zero cursors, got %d and %d", first.Cursor, second.Cursor)
	}
	if second.Cursor <= first.Cursor {
		t.Fatalf("want strictly increasing cursors, got %d then %d", first.Cursor, second.Cursor)
	}
}

func TestSubscriptionCursorTracksLastDelivered(t *testing.T) {
	feed := NewChangeFeed()
	sub := feed.SubscribeDurable(4)
	defer feed.Unsubscribe(sub)

	if sub.Cursor() != 0 {
		t.Fatalf("want cursor 0 before any delivery, got %d", sub.Cursor())
	}

	feed.Publish(ChangeEvent{Topic: TopicVerification, ContractID: "c1"})

	select {
	case ev := <-sub.Events():
		if sub.Cursor() != ev.Cursor {
			t.Fatalf("want subscription cursor %d to match delivered event cursor %d", sub.Cursor(), ev.Cursor)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for durable delivery")
	}
}

func TestPublishGivesEachSubscriberIndependentCursorTracking(t *testing.T) {
	feed := NewChangeFeed()
	fast := feed.Subscribe(4)
	slow := feed.Subscribe(0) // buffer 0 clamps to default 16, still drains below capacity
	defer feed.Unsubscribe(fast)
	defer feed.Unsubscribe(slow)

	feed.Publish(ChangeEvent{Topic: TopicReview, ContractID: "c1"})

	<-fast.Events()
	<-slow.Events()

	if fast.Cursor() != slow.Cursor() {
		t.Fatalf("want both subscribers to observe the same cursor for the same event, got %d and %d", fast.Cursor(), slow.Cursor())
	}
}
