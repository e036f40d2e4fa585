package sync

import (
	"context"
	"testing"
	"time"

	"github.com/klauern/calmirror/internal/calendar"
	"github.com/klauern/calmirror/internal/model"
	"github.com/klauern/calmirror/internal/provenance"
)

func TestFindMirror(t *testing.T) {
	tags := provenance.Tags{Instance: "calmirror", Rule: testRule}
	other := provenance.Tags{Instance: "calmirror", Rule: "other_rule"}
	start := time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC)

	source := model.Record{
		ID:               "team-sync",
		SourceEventID:    "team-sync",
		SourceCalendarID: workCal,
		Start:            model.At(start),
		End:              model.At(start.Add(time.Hour)),
	}

	tests := map[string]struct {
		seed   func(mem *calendar.Memory)
		wantID string
	}{
		"no events": {
			seed: func(*calendar.Memory) {},
		},
		"exact mirror": {
			seed: func(mem *calendar.Memory) {
				mem.Put(personalCal, mirrorOf("m1", "team-sync", workCal, tags, start))
			},
			wantID: "m1",
		},
		"moved within a day": {
			seed: func(mem *calendar.Memory) {
				mem.Put(personalCal, mirrorOf("m1", "team-sync", workCal, tags, start.Add(20*time.Hour)))
			},
			wantID: "m1",
		},
		"outside lookup window": {
			seed: func(mem *calendar.Memory) {
				mem.Put(personalCal, mirrorOf("m1", "team-sync", workCal, tags, start.Add(72*time.Hour)))
			},
		},
		"same time other source": {
			seed: func(mem *calendar.Memory) {
				mem.Put(personalCal, mirrorOf("m1", "another", workCal, tags, start))
			},
		},
		"same source other calendar": {
			seed: func(mem *calendar.Memory) {
				mem.Put(personalCal, mirrorOf("m1", "team-sync", "elsewhere@example.com", tags, start))
			},
		},
		"owned by another rule": {
			seed: func(mem *calendar.Memory) {
				mem.Put(personalCal, mirrorOf("m1", "team-sync", workCal, other, start))
			},
		},
		"picks the matching one": {
			seed: func(mem *calendar.Memory) {
				mem.Put(personalCal, mirrorOf("m1", "another", workCal, tags, start))
				mem.Put(personalCal, mirrorOf("m2", "team-sync", workCal, tags, start))
			},
			wantID: "m2",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			mem := calendar.NewMemory(personalCal)
			tt.seed(mem)

			got, err := FindMirror(context.Background(), mem, personalCal, source, tags)
			if err != nil {
				t.Fatalf("FindMirror() error = %v", err)
			}
			switch {
			case tt.wantID == "" && got != nil:
				t.Errorf("FindMirror() = %s, want none", got.Id)
			case tt.wantID != "" && (got == nil || got.Id != tt.wantID):
				t.Errorf("FindMirror() = %v, want %s", got, tt.wantID)
			}
		})
	}
}

func TestFindAllMirrors(t *testing.T) {
	tags := provenance.Tags{Instance: "calmirror", Rule: testRule}
	other := provenance.Tags{Instance: "calmirror", Rule: "other_rule"}

	mem := calendar.NewMemory(personalCal)
	mem.Put(personalCal, mirrorOf("m1", "a", workCal, tags, testNow))
	mem.Put(personalCal, mirrorOf("m2", "b", workCal, tags, testNow.Add(-400*24*time.Hour)))
	mem.Put(personalCal, mirrorOf("m3", "c", "elsewhere@example.com", tags, testNow))
	mem.Put(personalCal, mirrorOf("m4", "d", workCal, other, testNow))
	mem.Put(personalCal, timedEvent("plain", "Dentist", testNow, testNow.Add(time.Hour)))

	got, err := FindAllMirrors(context.Background(), mem, personalCal, tags, workCal)
	if err != nil {
		t.Fatalf("FindAllMirrors() error = %v", err)
	}
	if len(got) != 2 || got[0].Id != "m1" || got[1].Id != "m2" {
		var ids []string
		for _, ev := range got {
			ids = append(ids, ev.Id)
		}
		t.Errorf("FindAllMirrors() = %v, want [m1 m2]", ids)
	}
}

func TestSearch_Paginates(t *testing.T) {
	tags := provenance.Tags{Instance: "calmirror", Rule: testRule}
	mem := calendar.NewMemory(personalCal)
	for range SearchPageSize + 10 {
		mem.Put(personalCal, mirrorOf("", "x", workCal, tags, testNow))
	}
	mem.Put(personalCal, timedEvent("plain", "Dentist", testNow, testNow.Add(time.Hour)))

	got, err := Search(context.Background(), mem, personalCal, tags.InstanceFilter())
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != SearchPageSize+10 {
		t.Errorf("Search() returned %d events, want %d", len(got), SearchPageSize+10)
	}
	if calls := mem.Calls(calendar.MethodList); calls != 2 {
		t.Errorf("ListEvents calls = %d, want 2", calls)
	}
}

func TestSearch_Error(t *testing.T) {
	mem := calendar.NewMemory()
	if _, err := Search(context.Background(), mem, "missing@example.com", "k=v"); !calendar.IsNotFound(err) {
		t.Errorf("Search() error = %v, want not found", err)
	}
}
