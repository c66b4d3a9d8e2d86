package reconcile

import (
	"testing"

	"campfire/pkg/domain"
)

func pendingSend(tempID, content string) domain.Message {
	return domain.Message{ID: tempID, ChannelID: "ch-1", AuthorID: "u-1", Content: content}
}

func TestBeginAckLifecycle(t *testing.T) {
	entries := Begin(nil, "tmp-1", pendingSend("tmp-1", "hello"))
	if len(entries) != 1 || entries[0].Status != StatusPending {
		t.Fatalf("begin should add one pending entry, got %+v", entries)
	}

	server := domain.Message{ID: "srv-9", ChannelID: "ch-1", AuthorID: "u-1", Content: "hello"}
	entries = Ack(entries, "tmp-1", server)
	if entries[0].Status != StatusCommitted || entries[0].Message.ID != "srv-9" {
		t.Fatalf("ack should commit with server copy, got %+v", entries[0])
	}
}

func TestDuplicateAckDoesNotDoubleApply(t *testing.T) {
	entries := Begin(nil, "tmp-1", pendingSend("tmp-1", "hello"))
	server := domain.Message{ID: "srv-9", Content: "hello"}
	once := Ack(entries, "tmp-1", server)
	twice := Ack(once, "tmp-1", server)
	if len(twice) != 1 || twice[0].Status != StatusCommitted {
		t.Fatalf("duplicate ack changed state: %+v", twice)
	}

	merged := Merge([]domain.Message{server}, twice)
	if len(merged) != 1 {
		t.Fatalf("committed entry present in fetch must not render twice, got %d", len(merged))
	}
}

func TestDuplicateBeginIsNoOp(t *testing.T) {
	entries := Begin(nil, "tmp-1", pendingSend("tmp-1", "hello"))
	entries = Begin(entries, "tmp-1", pendingSend("tmp-1", "hello"))
	if len(entries) != 1 {
		t.Fatalf("duplicate begin should not add a second entry, got %d", len(entries))
	}
}

func TestFailThenRetryKeepsTempID(t *testing.T) {
	entries := Begin(nil, "tmp-1", pendingSend("tmp-1", "hello"))
	entries = Fail(entries, "tmp-1", "rate limited")
	if entries[0].Status != StatusFailed || entries[0].LastError == "" {
		t.Fatalf("fail should record reason, got %+v", entries[0])
	}

	entries = Retry(entries, "tmp-1")
	if entries[0].Status != StatusPending || entries[0].TempID != "tmp-1" {
		t.Fatalf("retry should re-enter pending with same temp id, got %+v", entries[0])
	}
	if entries[0].LastError != "" {
		t.Fatalf("retry should clear the error")
	}
}

func TestLateFailAfterAckIsStale(t *testing.T) {
	entries := Begin(nil, "tmp-1", pendingSend("tmp-1", "hello"))
	entries = Ack(entries, "tmp-1", domain.Message{ID: "srv-9"})
	entries = Fail(entries, "tmp-1", "timeout")
	if entries[0].Status != StatusCommitted {
		t.Fatalf("late failure must not undo a commit, got %+v", entries[0])
	}
}

func TestPruneDropsConfirmedEntries(t *testing.T) {
	entries := Begin(nil, "tmp-1", pendingSend("tmp-1", "a"))
	entries = Begin(entries, "tmp-2", pendingSend("tmp-2", "b"))
	entries = Ack(entries, "tmp-1", domain.Message{ID: "srv-1"})

	entries = Prune(entries, []domain.Message{{ID: "srv-1"}})
	if len(entries) != 1 || entries[0].TempID != "tmp-2" {
		t.Fatalf("prune should keep only unconfirmed sends, got %+v", entries)
	}
}

func TestMergeAppendsPendingTail(t *testing.T) {
	entries := Begin(nil, "tmp-1", pendingSend("tmp-1", "draft"))
	fetched := []domain.Message{{ID: "srv-1", Content: "older"}}
	merged := Merge(fetched, entries)
	if len(merged) != 2 || merged[1].ID != "tmp-1" {
		t.Fatalf("pending send should render after fetched messages, got %+v", merged)
	}
}

func TestTransitionsArePure(t *testing.T) {
	original := Begin(nil, "tmp-1", pendingSend("tmp-1", "hello"))
	_ = Ack(original, "tmp-1", domain.Message{ID: "srv-9"})
	if original[0].Status != StatusPending {
		t.Fatalf("ack mutated its input: %+v", original[0])
	}
}
