package ledger

import (
	"context"
	"testing"
)

func newMemoryService(t *testing.T) *SQLiteService {
	t.Helper()
	svc, err := NewSQLiteService(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestRecordHandSettlementIdempotent(t *testing.T) {
	svc := newMemoryService(t)
	ctx := context.Background()

	recs := []HandRecord{
		{GameID: "g1", HandNo: 1, Team: 1, Bid: 5, Tricks: 6, Bags: 1, Score: 51, Total: 51},
		{GameID: "g1", HandNo: 1, Team: 2, Bid: 7, Tricks: 7, Score: 70, Total: 70},
	}
	if err := svc.RecordHandSettlement(ctx, recs); err != nil {
		t.Fatalf("first record: %v", err)
	}
	// Replays must not duplicate rows.
	if err := svc.RecordHandSettlement(ctx, recs); err != nil {
		t.Fatalf("replay record: %v", err)
	}

	var count int
	if err := svc.db.QueryRow(`SELECT COUNT(*) FROM hand_settlements WHERE game_id = 'g1'`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 settlement rows, got %d", count)
	}
}

func TestRecordGameResultAppliesStakeOnce(t *testing.T) {
	svc := newMemoryService(t)
	ctx := context.Background()

	outcomes := []SeatOutcome{
		{UserID: "alice", Seat: 0, Team: 1, Won: true, Delta: 100},
		{UserID: "bob", Seat: 1, Team: 2, Won: false, Delta: -100},
		{UserID: "carol", Seat: 2, Team: 1, Won: true, Delta: 100},
		{UserID: "dave", Seat: 3, Team: 2, Won: false, Delta: -100},
	}
	if err := svc.RecordGameResult(ctx, "g1", outcomes); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := svc.RecordGameResult(ctx, "g1", outcomes); err != nil {
		t.Fatalf("replay: %v", err)
	}

	bal, err := svc.Balance(ctx, "alice")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 100 {
		t.Fatalf("alice balance = %d, want 100 (stake applied once)", bal)
	}
	bal, err = svc.Balance(ctx, "bob")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != -100 {
		t.Fatalf("bob balance = %d, want -100", bal)
	}
}

func TestBalanceAccumulatesAcrossGames(t *testing.T) {
	svc := newMemoryService(t)
	ctx := context.Background()

	if err := svc.RecordGameResult(ctx, "g1", []SeatOutcome{{UserID: "alice", Team: 1, Won: true, Delta: 50}}); err != nil {
		t.Fatalf("record g1: %v", err)
	}
	if err := svc.RecordGameResult(ctx, "g2", []SeatOutcome{{UserID: "alice", Team: 2, Won: false, Delta: -20}}); err != nil {
		t.Fatalf("record g2: %v", err)
	}

	bal, err := svc.Balance(ctx, "alice")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 30 {
		t.Fatalf("balance = %d, want 30", bal)
	}
}

func TestBalanceUnknownUserIsZero(t *testing.T) {
	svc := newMemoryService(t)
	bal, err := svc.Balance(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if bal != 0 {
		t.Fatalf("balance = %d, want 0", bal)
	}
}
