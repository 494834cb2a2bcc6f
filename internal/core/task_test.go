package core

import "testing"

func TestNewTaskDefaultsToOpen(t *testing.T) {
	task := NewTask("T-1", "Add retry logic")
	if task.Status != TaskStatusOpen {
		t.Fatalf("expected new task to default to open, got %s", task.Status)
	}
	if !task.IsOpenForScheduling() {
		t.Fatal("expected open task to be schedulable")
	}
}

func TestTaskBuilderChain(t *testing.T) {
	task := NewTask("T-2", "Write docs").
		WithDescription("Document the new flag").
		WithAcceptance("docs/flags.md updated").
		WithModel("sonnet").
		WithDependencies("T-1").
		WithPriority(2).
		WithLabels("docs", "low-risk")

	if task.Description != "Document the new flag" {
		t.Errorf("unexpected description: %s", task.Description)
	}
	if task.Model != "sonnet" {
		t.Errorf("unexpected model: %s", task.Model)
	}
	if len(task.Dependencies) != 1 || task.Dependencies[0] != "T-1" {
		t.Errorf("unexpected dependencies: %v", task.Dependencies)
	}
	if !task.HasLabel("low-risk") {
		t.Error("expected low-risk label")
	}
	if task.HasLabel("missing") {
		t.Error("did not expect missing label")
	}
}

func TestTaskIsClosed(t *testing.T) {
	task := NewTask("T-3", "Ship it")
	if task.IsClosed() {
		t.Fatal("new task should not be closed")
	}
	task.Status = TaskStatusClosed
	if !task.IsClosed() {
		t.Fatal("expected closed task to report closed")
	}
	if task.IsOpenForScheduling() {
		t.Fatal("closed task should not be schedulable")
	}
}

func TestTaskIsDotted(t *testing.T) {
	cases := []struct {
		id     TaskID
		dotted bool
	}{
		{"epic-1.2", true},
		{"epic-1.02", true},
		{"epic-1", false},
		{"epic-1.", false},
		{"epic-1.x", false},
	}
	for _, tc := range cases {
		task := NewTask(tc.id, "t")
		if got := task.IsDotted(); got != tc.dotted {
			t.Errorf("IsDotted(%s) = %v, want %v", tc.id, got, tc.dotted)
		}
	}
}

func TestTaskValidate(t *testing.T) {
	if err := (&Task{}).Validate(); err == nil {
		t.Fatal("expected error for empty id")
	}
	if err := (&Task{ID: "T-1"}).Validate(); err == nil {
		t.Fatal("expected error for empty title")
	}
	if err := (&Task{ID: "T-1", Title: "ok"}).Validate(); err != nil {
		t.Fatalf("expected valid task, got %v", err)
	}
}
