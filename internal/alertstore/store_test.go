package alertstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"alertkit/internal/alert"
	logx "alertkit/pkg/logx"
)

func openBackends(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "alerts.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func testAlert(source, id string, trigger alert.Trigger) alert.Alert {
	return alert.Alert{
		Identifier:        alert.NewIdentifier(source, id),
		ForegroundContent: &alert.Content{Title: "Title " + id, Body: "Body", AcknowledgeLabel: "OK"},
		BackgroundContent: &alert.Content{Title: "Title " + id, Body: "Body"},
		Trigger:           trigger,
		InterruptionLevel: alert.LevelTimeSensitive,
		Sound:             &alert.Sound{Type: alert.SoundNamed, Name: "chime.mp3"},
	}
}

// ms truncates to the store's millisecond precision.
func ms(t time.Time) time.Time { return time.UnixMilli(t.UnixMilli()) }

func TestStoreIssueRetractRoundTrip(t *testing.T) {
	t.Parallel()
	for name, store := range openBackends(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := testAlert("pump", "occlusion", alert.Immediate())
			t0 := ms(time.Now())

			if err := store.RecordIssued(ctx, a, t0); err != nil {
				t.Fatalf("RecordIssued: %v", err)
			}
			if err := store.RecordRetraction(ctx, a.Identifier, t0.Add(2*time.Second)); err != nil {
				t.Fatalf("RecordRetraction: %v", err)
			}

			rows, err := store.Fetch(ctx, a.Identifier)
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if len(rows) != 1 {
				t.Fatalf("Fetch returned %d rows, want 1", len(rows))
			}
			row := rows[0]
			if row.AcknowledgedDate != nil {
				t.Errorf("AcknowledgedDate = %v, want nil", row.AcknowledgedDate)
			}
			if row.RetractedDate == nil || row.RetractedDate.UnixMilli() != t0.Add(2*time.Second).UnixMilli() {
				t.Errorf("RetractedDate = %v, want %v", row.RetractedDate, t0.Add(2*time.Second))
			}
			if row.IssuedDate.UnixMilli() != t0.UnixMilli() {
				t.Errorf("IssuedDate = %v, want %v", row.IssuedDate, t0)
			}
		})
	}
}

func TestStoreAcknowledgementMutatesOpenRowInPlace(t *testing.T) {
	t.Parallel()
	for name, store := range openBackends(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := testAlert("pump", "lowBattery", alert.Delayed(30*time.Second))
			t0 := ms(time.Now())

			if err := store.RecordIssued(ctx, a, t0); err != nil {
				t.Fatalf("RecordIssued: %v", err)
			}
			rows, _ := store.Fetch(ctx, a.Identifier)
			counterBefore := rows[0].ModificationCounter

			if err := store.RecordAcknowledgement(ctx, a.Identifier, t0.Add(time.Second)); err != nil {
				t.Fatalf("RecordAcknowledgement: %v", err)
			}

			rows, err := store.Fetch(ctx, a.Identifier)
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if len(rows) != 1 {
				t.Fatalf("acknowledgment must mutate, not insert; got %d rows", len(rows))
			}
			if rows[0].AcknowledgedDate == nil {
				t.Fatal("AcknowledgedDate not set")
			}
			if rows[0].ModificationCounter <= counterBefore {
				t.Errorf("counter not bumped: %d -> %d", counterBefore, rows[0].ModificationCounter)
			}

			open, err := store.LookupAllUnacknowledged(ctx)
			if err != nil {
				t.Fatalf("LookupAllUnacknowledged: %v", err)
			}
			if len(open) != 0 {
				t.Fatalf("expected no open rows, got %d", len(open))
			}
		})
	}
}

func TestStoreCloseWithoutOpenRow(t *testing.T) {
	t.Parallel()
	for name, store := range openBackends(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			err := store.RecordAcknowledgement(ctx, alert.NewIdentifier("ghost", "nope"), time.Now())
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStoreReissueCreatesFreshRow(t *testing.T) {
	t.Parallel()
	for name, store := range openBackends(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := testAlert("cgm", "signalLoss", alert.Repeating(time.Minute))
			t0 := ms(time.Now())

			if err := store.RecordIssued(ctx, a, t0); err != nil {
				t.Fatalf("RecordIssued: %v", err)
			}
			// Prior row still open: a re-issue starts a new event, the old
			// row remains queryable history.
			if err := store.RecordIssued(ctx, a, t0.Add(time.Minute)); err != nil {
				t.Fatalf("RecordIssued (again): %v", err)
			}

			rows, err := store.Fetch(ctx, a.Identifier)
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if len(rows) != 2 {
				t.Fatalf("got %d rows, want 2", len(rows))
			}
			if !rows[0].IssuedDate.Before(rows[1].IssuedDate) {
				t.Error("Fetch must order by issued date ascending")
			}

			// Closing affects the most recent open row.
			if err := store.RecordRetraction(ctx, a.Identifier, t0.Add(2*time.Minute)); err != nil {
				t.Fatalf("RecordRetraction: %v", err)
			}
			rows, _ = store.Fetch(ctx, a.Identifier)
			if rows[0].RetractedDate != nil {
				t.Error("older row should remain open")
			}
			if rows[1].RetractedDate == nil {
				t.Error("latest row should be retracted")
			}
		})
	}
}

func TestStoreCursorPagination(t *testing.T) {
	t.Parallel()
	for name, store := range openBackends(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			distantPast := ms(time.Now().Add(-24 * time.Hour))
			now := ms(time.Now())

			alertA := testAlert("pump", "alertA", alert.Immediate())
			alertB := testAlert("pump", "alertB", alert.Immediate())
			if err := store.RecordIssued(ctx, alertA, distantPast); err != nil {
				t.Fatalf("RecordIssued A: %v", err)
			}
			if err := store.RecordIssued(ctx, alertB, now); err != nil {
				t.Fatalf("RecordIssued B: %v", err)
			}

			// Filtered query: only B matches, but the anchor still lands on
			// the last row touched so the feed can resume.
			anchor, rows, err := store.ExecuteQuery(ctx, now, 100)
			if err != nil {
				t.Fatalf("ExecuteQuery: %v", err)
			}
			if len(rows) != 1 || rows[0].AlertIdentifier != "alertB" {
				t.Fatalf("filtered query returned %v", rows)
			}
			if anchor.ModificationCounter != 2 {
				t.Fatalf("anchor counter = %d, want 2", anchor.ModificationCounter)
			}

			// Page through everything one row at a time: no duplicates, no gaps.
			anchor, rows, err = store.ExecuteQuery(ctx, distantPast, 1)
			if err != nil {
				t.Fatalf("ExecuteQuery page 1: %v", err)
			}
			if len(rows) != 1 || rows[0].AlertIdentifier != "alertA" {
				t.Fatalf("page 1 = %v", rows)
			}

			anchor, rows, err = store.ContinueQuery(ctx, anchor, 1)
			if err != nil {
				t.Fatalf("ContinueQuery page 2: %v", err)
			}
			if len(rows) != 1 || rows[0].AlertIdentifier != "alertB" {
				t.Fatalf("page 2 = %v", rows)
			}

			_, rows, err = store.ContinueQuery(ctx, anchor, 1)
			if err != nil {
				t.Fatalf("ContinueQuery page 3: %v", err)
			}
			if len(rows) != 0 {
				t.Fatalf("page 3 should be empty, got %v", rows)
			}
		})
	}
}

func TestStoreAnchorSkipsFilteredTail(t *testing.T) {
	t.Parallel()
	for name, store := range openBackends(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			distantPast := ms(time.Now().Add(-24 * time.Hour))
			now := ms(time.Now())

			// The row written last is the one the filter excludes.
			recent := testAlert("pump", "recent", alert.Immediate())
			old := testAlert("pump", "old", alert.Immediate())
			if err := store.RecordIssued(ctx, recent, now); err != nil {
				t.Fatalf("RecordIssued recent: %v", err)
			}
			if err := store.RecordIssued(ctx, old, distantPast); err != nil {
				t.Fatalf("RecordIssued old: %v", err)
			}

			anchor, rows, err := store.ExecuteQuery(ctx, now, 100)
			if err != nil {
				t.Fatalf("ExecuteQuery: %v", err)
			}
			if len(rows) != 1 || rows[0].AlertIdentifier != "recent" {
				t.Fatalf("filtered query returned %v", rows)
			}
			// The anchor covers the whole scanned sequence, not just the
			// returned row, so continuation never rescans the filtered tail.
			if anchor.ModificationCounter != 2 {
				t.Fatalf("anchor counter = %d, want 2", anchor.ModificationCounter)
			}

			_, rows, err = store.ContinueQuery(ctx, anchor, 100)
			if err != nil {
				t.Fatalf("ContinueQuery: %v", err)
			}
			if len(rows) != 0 {
				t.Fatalf("continuation should be empty, got %v", rows)
			}
		})
	}
}

func TestStoreAnchorNeverTrailsReturnedRows(t *testing.T) {
	t.Parallel()
	for name, store := range openBackends(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			t0 := ms(time.Now())
			for i := 0; i < 5; i++ {
				a := testAlert("pump", fmt.Sprintf("alert%d", i), alert.Immediate())
				if err := store.RecordIssued(ctx, a, t0); err != nil {
					t.Fatalf("RecordIssued: %v", err)
				}
			}

			// Page through at every size that produces full, short, and
			// exact-boundary pages. A consumer resuming from the anchor must
			// never see a row twice, which requires the anchor to cover
			// every returned row even when the page ends short.
			for _, limit := range []int{1, 2, 5, 100} {
				limit := limit
				seen := map[int64]string{}
				anchor, rows, err := store.ExecuteQuery(ctx, t0, limit)
				for {
					if err != nil {
						t.Fatalf("limit %d: %v", limit, err)
					}
					if len(rows) == 0 {
						break
					}
					for _, r := range rows {
						if prev, dup := seen[r.ModificationCounter]; dup {
							t.Fatalf("limit %d: counter %d returned twice (%s, %s)",
								limit, r.ModificationCounter, prev, r.AlertIdentifier)
						}
						seen[r.ModificationCounter] = r.AlertIdentifier
					}
					if last := rows[len(rows)-1].ModificationCounter; anchor.ModificationCounter < last {
						t.Fatalf("limit %d: anchor %d trails returned row %d",
							limit, anchor.ModificationCounter, last)
					}
					anchor, rows, err = store.ContinueQuery(ctx, anchor, limit)
				}
				if len(seen) != 5 {
					t.Fatalf("limit %d: saw %d rows, want 5", limit, len(seen))
				}
			}
		})
	}
}

func TestStoreCursorSeesUpdates(t *testing.T) {
	t.Parallel()
	for name, store := range openBackends(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := testAlert("pump", "occlusion", alert.Immediate())
			t0 := ms(time.Now())

			if err := store.RecordIssued(ctx, a, t0); err != nil {
				t.Fatalf("RecordIssued: %v", err)
			}
			anchor, rows, err := store.ExecuteQuery(ctx, t0, 10)
			if err != nil || len(rows) != 1 {
				t.Fatalf("ExecuteQuery: %v, %d rows", err, len(rows))
			}

			// An acknowledgment bumps the counter, so the tailing consumer
			// sees the row again with its new state.
			if err := store.RecordAcknowledgement(ctx, a.Identifier, t0.Add(time.Second)); err != nil {
				t.Fatalf("RecordAcknowledgement: %v", err)
			}
			_, rows, err = store.ContinueQuery(ctx, anchor, 10)
			if err != nil {
				t.Fatalf("ContinueQuery: %v", err)
			}
			if len(rows) != 1 || rows[0].AcknowledgedDate == nil {
				t.Fatalf("expected updated row in feed, got %v", rows)
			}
		})
	}
}

func TestStoredAlertRoundTripsContent(t *testing.T) {
	t.Parallel()
	for name, store := range openBackends(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := testAlert("pump", "occlusion", alert.Delayed(45*time.Second))
			a.InterruptionLevel = alert.LevelCritical
			a.ForegroundContent.IsCritical = true

			if err := store.RecordIssued(ctx, a, ms(time.Now())); err != nil {
				t.Fatalf("RecordIssued: %v", err)
			}
			rows, err := store.Fetch(ctx, a.Identifier)
			if err != nil || len(rows) != 1 {
				t.Fatalf("Fetch: %v, %d rows", err, len(rows))
			}

			got, err := rows[0].Alert()
			if err != nil {
				t.Fatalf("Alert(): %v", err)
			}
			if got.Identifier != a.Identifier {
				t.Errorf("Identifier = %v, want %v", got.Identifier, a.Identifier)
			}
			if got.Trigger != a.Trigger {
				t.Errorf("Trigger = %v, want %v", got.Trigger, a.Trigger)
			}
			if got.InterruptionLevel != alert.LevelCritical {
				t.Errorf("InterruptionLevel = %v", got.InterruptionLevel)
			}
			if got.ForegroundContent == nil || *got.ForegroundContent != *a.ForegroundContent {
				t.Errorf("ForegroundContent = %+v, want %+v", got.ForegroundContent, a.ForegroundContent)
			}
			if got.Sound == nil || *got.Sound != *a.Sound {
				t.Errorf("Sound = %+v, want %+v", got.Sound, a.Sound)
			}
		})
	}
}

func TestStoreStats(t *testing.T) {
	t.Parallel()
	for name, store := range openBackends(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			t0 := ms(time.Now())

			a := testAlert("pump", "one", alert.Immediate())
			b := testAlert("pump", "two", alert.Immediate())
			_ = store.RecordIssued(ctx, a, t0)
			_ = store.RecordIssued(ctx, b, t0)
			_ = store.RecordAcknowledgement(ctx, a.Identifier, t0.Add(time.Second))

			st, err := store.Stats(ctx)
			if err != nil {
				t.Fatalf("Stats: %v", err)
			}
			if st.TotalRows != 2 || st.OpenRows != 1 {
				t.Fatalf("Stats = %+v, want 2 total / 1 open", st)
			}
		})
	}
}
