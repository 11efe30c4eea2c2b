package batch

import (
	"testing"
	"time"

	"github.com/opendvf/dvfload/internal/clean"
)

func admitted(id string) clean.Record {
	d := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	return clean.Record{IDMutation: id, DateMutation: &d, ImportYear: 2024}
}

func TestEmitsFullBatches(t *testing.T) {
	a := New(3)

	var batches [][]clean.Record
	for i := 0; i < 7; i++ {
		if b := a.Add(admitted("m")); b != nil {
			batches = append(batches, b)
		}
	}
	if b := a.Flush(); b != nil {
		batches = append(batches, b)
	}

	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	if len(batches[0]) != 3 || len(batches[1]) != 3 || len(batches[2]) != 1 {
		t.Errorf("unexpected batch sizes: %d, %d, %d", len(batches[0]), len(batches[1]), len(batches[2]))
	}
	if a.Admitted() != 7 {
		t.Errorf("expected 7 admitted, got %d", a.Admitted())
	}
}

func TestFlushEmptyReturnsNil(t *testing.T) {
	a := New(3)
	if b := a.Flush(); b != nil {
		t.Errorf("expected nil flush, got %d records", len(b))
	}
}

func TestRejectsIneligibleRecords(t *testing.T) {
	a := New(10)

	d := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	a.Add(admitted("m-1"))
	a.Add(clean.Record{DateMutation: &d})    // no mutation id
	a.Add(clean.Record{IDMutation: "m-2"})   // no date
	a.Add(clean.Record{})                    // neither

	if a.Admitted() != 1 {
		t.Errorf("expected 1 admitted, got %d", a.Admitted())
	}
	if a.Rejected() != 3 {
		t.Errorf("expected 3 rejected, got %d", a.Rejected())
	}

	by := a.RejectedBy()
	if by[clean.ReasonMissingID] != 2 {
		t.Errorf("expected 2 missing-id rejections, got %d", by[clean.ReasonMissingID])
	}
	if by[clean.ReasonMissingDate] != 1 {
		t.Errorf("expected 1 missing-date rejection, got %d", by[clean.ReasonMissingDate])
	}

	b := a.Flush()
	if len(b) != 1 {
		t.Fatalf("expected final batch of 1, got %d", len(b))
	}
	if b[0].IDMutation != "m-1" {
		t.Errorf("unexpected record in batch: %q", b[0].IDMutation)
	}
}

func TestOrderPreserved(t *testing.T) {
	a := New(5)
	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		a.Add(admitted(id))
	}
	b := a.Flush()
	for i, id := range ids {
		if b[i].IDMutation != id {
			t.Errorf("position %d: got %q, want %q", i, b[i].IDMutation, id)
		}
	}
}
