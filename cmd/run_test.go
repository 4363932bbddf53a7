package cmd

import (
	"errors"
	"os"
	"testing"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/spigell/mail-triage/internal/classifier"
	"github.com/spigell/mail-triage/internal/processing"
)

func sampleOutcomes() []processing.Outcome {
	return []processing.Outcome{
		{ID: "1", Category: classifier.ProjectRelated, Status: processing.StatusProcessed},
		{ID: "2", Category: classifier.ProjectRelated, Status: processing.StatusProcessed},
		{ID: "3", Category: classifier.EngineerRelated, Status: processing.StatusError, Reason: "no record extracted"},
		{ID: "4", Category: classifier.Other, Status: processing.StatusProcessed},
	}
}

func TestReportByCategory(t *testing.T) {
	t.Parallel()

	got := reportByCategory(sampleOutcomes())
	want := map[string]int{
		string(classifier.ProjectRelated): 2,
		string(classifier.Other):          1,
		"error":                           1,
	}

	if len(got) != len(want) {
		t.Fatalf("unexpected report: %v", got)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("report[%s] = %d, want %d", k, got[k], v)
		}
	}
}

func TestDumpToTmpFile(t *testing.T) {
	t.Parallel()

	filename, err := dumpToTmpFile(sampleOutcomes())
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	t.Cleanup(func() { os.Remove(filename) })

	data, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("read dump: %v", err)
	}

	var decoded []processing.Outcome
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode dump: %v", err)
	}
	if len(decoded) != 4 || decoded[2].Reason != "no record extracted" {
		t.Fatalf("unexpected dump content: %+v", decoded)
	}
}

func TestHandleAction(t *testing.T) {
	t.Parallel()

	logger := zap.NewNop()

	if err := handleAction(PromptExit, logger, nil); !errors.Is(err, errExit) {
		t.Fatalf("expected errExit, got %v", err)
	}
	if err := handleAction(PromptReport, logger, sampleOutcomes()); err != nil {
		t.Fatalf("report: %v", err)
	}
	if err := handleAction("unknown", logger, nil); err == nil {
		t.Fatalf("expected error for unknown action")
	}
}
