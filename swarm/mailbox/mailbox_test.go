package mailbox

import "testing"

func TestSendThenDrainUnreadMarksMessagesRead(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Send("worker-1", "parent", "please pause", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := s.Send("worker-1", "parent", "and check the plan", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}

	drained, err := s.DrainUnread("worker-1")
	if err != nil {
		t.Fatalf("DrainUnread: %v", err)
	}
	if len(drained) != 2 {
		t.Fatalf("expected 2 unread messages, got %d", len(drained))
	}

	// A second drain should see nothing new: both messages are now read.
	second, err := s.DrainUnread("worker-1")
	if err != nil {
		t.Fatalf("DrainUnread (second): %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected no unread messages left, got %d", len(second))
	}
}

func TestDrainUnreadOnMissingMailboxReturnsEmpty(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	msgs, err := s.DrainUnread("nobody")
	if err != nil {
		t.Fatalf("expected no error for a never-written mailbox, got %v", err)
	}
	if msgs != nil {
		t.Fatalf("expected nil, got %v", msgs)
	}
}
