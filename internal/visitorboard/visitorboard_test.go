package visitorboard

import (
	"context"
	"math"
	"testing"

	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/cyhdev/backend/internal/db"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gormDB, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	if err := gormDB.AutoMigrate(&db.VisitationDatum{}); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return gormDB
}

func TestSyncAccumulatesDuplicates(t *testing.T) {
	gormDB := openTestDB(t)
	k := KeyFor(37.75, -97.82)
	rows := []db.VisitationDatum{
		{LatBits: k.LatBits, LonBits: k.LonBits, Count: 3},
		{LatBits: k.LatBits, LonBits: k.LonBits, Count: 4},
	}
	if err := gormDB.Create(&rows).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	board := New(gormDB)
	if err := board.Sync(context.Background()); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	snap := board.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected exactly 1 accumulated entry, got %d", len(snap))
	}
	if snap[0].Count != 7 {
		t.Fatalf("expected accumulated count 7, got %d", snap[0].Count)
	}
}

func TestSnapshotFiltersNaN(t *testing.T) {
	gormDB := openTestDB(t)
	board := New(gormDB)

	board.Record(10, 20)
	nanKey := KeyFor(math.NaN(), 5)
	board.shards[shardIndex(board.seed, nanKey)].counts[nanKey] = 1

	snap := board.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected NaN entry to be filtered, got %d entries", len(snap))
	}
	if snap[0].Lat != 10 || snap[0].Lon != 20 {
		t.Fatalf("unexpected surviving entry: %+v", snap[0])
	}
}

func TestRecordIncrements(t *testing.T) {
	gormDB := openTestDB(t)
	board := New(gormDB)

	board.Record(1, 2)
	board.Record(1, 2)
	board.Record(3, 4)

	if board.Len() != 2 {
		t.Fatalf("expected 2 distinct keys, got %d", board.Len())
	}

	snap := board.Snapshot()
	var got1_2 uint64
	for _, e := range snap {
		if e.Lat == 1 && e.Lon == 2 {
			got1_2 = e.Count
		}
	}
	if got1_2 != 2 {
		t.Fatalf("expected count 2 for (1,2), got %d", got1_2)
	}
}
