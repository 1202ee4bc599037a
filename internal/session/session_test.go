package session

import (
	"os"
	"path/filepath"
	"testing"
)

func TestURLFlowAdvances(t *testing.T) {
	s := &Session{ChatID: 1, Step: StepURL}

	if ok := s.SetURL("https://example.com"); !ok {
		t.Fatal("SetURL at StepURL: got false, want true")
	}
	if ok := s.SetName("Example"); !ok {
		t.Fatal("SetName at StepName: got false, want true")
	}
	if ok := s.SetIcon("/tmp/icon.png"); !ok {
		t.Fatal("SetIcon at StepIcon: got false, want true")
	}
	if ok := s.Confirm(); !ok {
		t.Fatal("Confirm at StepConfirm: got false, want true")
	}
	if got, want := s.Step, StepBuilding; got != want {
		t.Errorf("Step: got %v, want %v", got, want)
	}
	want := Payload{URL: "https://example.com", AppName: "Example", IconFile: "/tmp/icon.png"}
	if s.Payload != want {
		t.Errorf("Payload: got %+v, want %+v", s.Payload, want)
	}
}

func TestArchiveFlowAdvances(t *testing.T) {
	s := &Session{ChatID: 1, Step: StepProjectType}

	if ok := s.SetProjectType("flutter"); !ok {
		t.Fatal("SetProjectType at StepProjectType: got false, want true")
	}
	if ok := s.SetBuildType("release"); !ok {
		t.Fatal("SetBuildType at StepBuildType: got false, want true")
	}
	if ok := s.SetArchive("/tmp/project.zip"); !ok {
		t.Fatal("SetArchive at StepUpload: got false, want true")
	}
	if got, want := s.Step, StepBuilding; got != want {
		t.Errorf("Step: got %v, want %v", got, want)
	}
}

func TestMismatchedInputLeavesSessionUntouched(t *testing.T) {
	s := &Session{ChatID: 1, Step: StepURL}

	if ok := s.SetName("Example"); ok {
		t.Error("SetName at StepURL: got true, want false")
	}
	if ok := s.Confirm(); ok {
		t.Error("Confirm at StepURL: got true, want false")
	}
	if ok := s.SetArchive("/tmp/project.zip"); ok {
		t.Error("SetArchive at StepURL: got true, want false")
	}
	if got, want := s.Step, StepURL; got != want {
		t.Errorf("Step: got %v, want %v", got, want)
	}
	if s.Payload != (Payload{}) {
		t.Errorf("Payload: got %+v, want empty", s.Payload)
	}
}

func TestStoreCreateReplaces(t *testing.T) {
	st := NewStore()

	first, replaced := st.Create(1, StepURL)
	if replaced != nil {
		t.Fatalf("first Create: replaced %+v, want nil", replaced)
	}
	second, replaced := st.Create(1, StepProjectType)
	if replaced != first {
		t.Errorf("second Create: replaced %+v, want first session", replaced)
	}
	if got := st.Get(1); got != second {
		t.Errorf("Get: got %+v, want second session", got)
	}
	if got, want := st.Len(), 1; got != want {
		t.Errorf("Len: got %d, want %d", got, want)
	}
}

func TestStoreDelete(t *testing.T) {
	st := NewStore()

	s, _ := st.Create(1, StepURL)
	if got := st.Delete(1); got != s {
		t.Errorf("Delete: got %+v, want created session", got)
	}
	if got := st.Get(1); got != nil {
		t.Errorf("Get after Delete: got %+v, want nil", got)
	}
	if got := st.Delete(1); got != nil {
		t.Errorf("second Delete: got %+v, want nil", got)
	}
}

func TestStoreKeysAreIndependent(t *testing.T) {
	st := NewStore()

	a, _ := st.Create(1, StepURL)
	b, _ := st.Create(2, StepProjectType)
	a.SetURL("https://example.com")

	if got, want := b.Step, StepProjectType; got != want {
		t.Errorf("other session step: got %v, want %v", got, want)
	}
	st.Delete(1)
	if got := st.Get(2); got != b {
		t.Errorf("Get(2) after Delete(1): got %+v, want session b", got)
	}
}

func TestRemoveAssets(t *testing.T) {
	dir := t.TempDir()
	icon := filepath.Join(dir, "icon.png")
	if err := os.WriteFile(icon, []byte("png"), 0o666); err != nil {
		t.Fatal(err)
	}

	p := &Payload{IconFile: icon, ArchiveFile: filepath.Join(dir, "missing.zip")}
	RemoveAssets(p, nil)

	if _, err := os.Stat(icon); !os.IsNotExist(err) {
		t.Errorf("icon file still exists: err %v", err)
	}
	if p.IconFile != "" || p.ArchiveFile != "" {
		t.Errorf("payload still references assets: %+v", p)
	}
}
