package sync

import (
	"strings"
	"testing"

	"github.com/klauern/calmirror/internal/model"
)

func sampleRule() *RuleResult {
	return &RuleResult{
		RuleID: testRule,
		Source: "work.main",
		Targets: []TargetResult{
			{
				Calendar: "personal.main",
				Mode:     model.PrivacyPrivate,
				Events: []EventResult{
					{Title: "Busy - 10:00", Action: ActionCreated},
					{Title: "Busy", Action: ActionUpdated},
					{Title: "Busy - 15:00", Action: ActionDeleted},
					{Title: "Busy", Action: ActionSkipped, Message: "event is a mirror"},
				},
				Warnings: []string{"unknown privacy mode"},
			},
			{
				Calendar: "personal.family",
				Mode:     model.PrivacyPublic,
				Events: []EventResult{
					{Title: "Team Sync", Action: ActionFailed, Error: "quota exceeded"},
				},
			},
		},
	}
}

func TestRuleResult_Counts(t *testing.T) {
	rr := sampleRule()
	got := rr.Counts()
	want := Counts{Synced: 2, Deleted: 1, Skipped: 1, Failed: 1}
	if got != want {
		t.Errorf("Counts() = %+v, want %+v", got, want)
	}
	if rr.Success() {
		t.Error("Success() = true with a failed event")
	}

	rr.Targets = rr.Targets[:1]
	if !rr.Success() {
		t.Error("Success() = false without failures")
	}
	rr.Targets[0].Error = "auth error"
	if rr.Success() {
		t.Error("Success() = true with a skipped target")
	}
}

func TestRuleResult_Plan(t *testing.T) {
	plan := sampleRule().Plan()
	if len(plan) != 4 {
		t.Fatalf("Plan() = %d items, want 4 (skips omitted)", len(plan))
	}
	if plan[0].Rule != testRule || plan[0].Target != "personal.main" || plan[0].Action != ActionCreated {
		t.Errorf("Plan()[0] = %+v", plan[0])
	}
	if plan[3].Detail != "quota exceeded" {
		t.Errorf("Plan()[3].Detail = %q, want the error", plan[3].Detail)
	}
}

func TestRuleResult_Summary(t *testing.T) {
	tests := map[string]struct {
		rr       *RuleResult
		contains []string
	}{
		"mixed": {
			rr: sampleRule(),
			contains: []string{
				"Rule work_to_personal (from work.main)",
				"-> personal.main [private]: synced 2, deleted 1, skipped 1, failed 0",
				"-> personal.family [public]: synced 0, deleted 0, skipped 0, failed 1",
				"! Team Sync: quota exceeded",
				"personal.main: unknown privacy mode",
			},
		},
		"dry run": {
			rr:       &RuleResult{RuleID: "r", Source: "a.b", DryRun: true},
			contains: []string{"Dry run - no changes made"},
		},
		"rule error": {
			rr:       &RuleResult{RuleID: "r", Source: "a.b", Error: "config error"},
			contains: []string{"Error: config error"},
		},
		"skipped target": {
			rr:       &RuleResult{RuleID: "r", Source: "a.b", Targets: []TargetResult{{Calendar: "x.y", Error: "auth error"}}},
			contains: []string{"-> x.y: skipped (auth error)"},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got := tt.rr.Summary()
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("Summary() missing %q in:\n%s", want, got)
				}
			}
		})
	}
}

func TestRunResult(t *testing.T) {
	ok := &RuleResult{RuleID: "ok", Targets: []TargetResult{{Events: []EventResult{{Action: ActionCreated}}}}}
	run := &RunResult{Rules: []*RuleResult{ok, sampleRule()}}

	if run.Success() {
		t.Error("Success() = true with a failing rule")
	}
	if failed := run.Failed(); len(failed) != 1 || failed[0].RuleID != testRule {
		t.Errorf("Failed() = %v", failed)
	}
	if c := run.Counts(); c.Synced != 3 {
		t.Errorf("Counts().Synced = %d, want 3", c.Synced)
	}
	if len(run.Plan()) != 5 {
		t.Errorf("Plan() = %d items, want 5", len(run.Plan()))
	}
	if !strings.Contains(run.Summary(), "Total: synced 3, deleted 1, skipped 1, failed 1") {
		t.Errorf("Summary() = %s", run.Summary())
	}
}
