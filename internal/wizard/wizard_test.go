package wizard

import (
	"errors"
	"testing"
)

func TestManualFlowSkipsImportStep(t *testing.T) {
	s := Start()
	if s.Step != StepLevel {
		t.Fatalf("initial step = %v, want %v", s.Step, StepLevel)
	}

	s, err := s.SelectLevel(LevelJunior).Next()
	if err != nil {
		t.Fatalf("advance from level: %v", err)
	}
	if s.Step != StepMethod {
		t.Fatalf("step after level = %v, want %v", s.Step, StepMethod)
	}

	s, err = s.SelectMethod(MethodManual).Next()
	if err != nil {
		t.Fatalf("advance from method: %v", err)
	}
	if s.Step != StepDone {
		t.Fatalf("manual flow should finish directly, got step %v", s.Step)
	}
}

func TestImportFlowVisitsImportStep(t *testing.T) {
	s := Start()
	s, _ = s.SelectLevel(LevelExperienced).Next()
	s, err := s.SelectMethod(MethodImport).Next()
	if err != nil {
		t.Fatalf("advance from method: %v", err)
	}
	if s.Step != StepImport {
		t.Fatalf("step after import method = %v, want %v", s.Step, StepImport)
	}

	if _, err := s.Next(); !errors.Is(err, ErrSelectionMissing) {
		t.Fatalf("advancing without source: err = %v, want ErrSelectionMissing", err)
	}

	s, err = s.SelectSource("pdf").Next()
	if err != nil {
		t.Fatalf("advance from import: %v", err)
	}
	if s.Step != StepDone {
		t.Fatalf("step after source = %v, want %v", s.Step, StepDone)
	}
}

func TestNextRequiresSelection(t *testing.T) {
	s := Start()
	if _, err := s.Next(); !errors.Is(err, ErrSelectionMissing) {
		t.Fatalf("advancing without level: err = %v, want ErrSelectionMissing", err)
	}

	s, _ = s.SelectLevel(LevelStudent).Next()
	if _, err := s.Next(); !errors.Is(err, ErrSelectionMissing) {
		t.Fatalf("advancing without method: err = %v, want ErrSelectionMissing", err)
	}
}

func TestBackKeepsSelections(t *testing.T) {
	s := Start()
	s, _ = s.SelectLevel(LevelJunior).Next()
	s, _ = s.SelectMethod(MethodImport).Next()

	s = s.Back()
	if s.Step != StepMethod {
		t.Fatalf("back from import = %v, want %v", s.Step, StepMethod)
	}
	if s.Method != MethodImport || s.Level != LevelJunior {
		t.Fatalf("back lost selections: %+v", s)
	}

	s = s.Back()
	if s.Step != StepLevel {
		t.Fatalf("back from method = %v, want %v", s.Step, StepLevel)
	}
	// 起点之前无法再回退。
	if s.Back().Step != StepLevel {
		t.Fatal("back from level should stay at level")
	}
}

func TestBackFromDoneDependsOnMethod(t *testing.T) {
	manual := Start()
	manual, _ = manual.SelectLevel(LevelJunior).Next()
	manual, _ = manual.SelectMethod(MethodManual).Next()
	if got := manual.Back().Step; got != StepMethod {
		t.Fatalf("manual back from done = %v, want %v", got, StepMethod)
	}

	imported := Start()
	imported, _ = imported.SelectLevel(LevelJunior).Next()
	imported, _ = imported.SelectMethod(MethodImport).Next()
	imported, _ = imported.SelectSource("pdf").Next()
	if got := imported.Back().Step; got != StepImport {
		t.Fatalf("import back from done = %v, want %v", got, StepImport)
	}
}

func TestSwitchingToManualClearsSource(t *testing.T) {
	s := Start()
	s, _ = s.SelectLevel(LevelJunior).Next()
	s, _ = s.SelectMethod(MethodImport).Next()
	s = s.SelectSource("pdf")

	s = s.Back().SelectMethod(MethodManual)
	if s.Source != "" {
		t.Fatalf("source should be cleared when switching to manual, got %q", s.Source)
	}

	s, err := s.Next()
	if err != nil {
		t.Fatalf("advance after switching to manual: %v", err)
	}
	if s.Step != StepDone {
		t.Fatalf("step = %v, want %v", s.Step, StepDone)
	}
}
