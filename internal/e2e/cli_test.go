package e2e

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davidahmann/hoststate/internal/testutil"
)

func TestCLIUpdateLoadWatch(t *testing.T) {
	root := testutil.RepoRoot(t)
	binPath := testutil.BuildHoststateBinary(t, root)

	workDir := t.TempDir()
	statePath := filepath.Join(workDir, "state.json")

	update := exec.Command(binPath, "update", "--state", statePath, "--json", "system.hostname", "pi2")
	update.Dir = workDir
	updateOut, err := update.CombinedOutput()
	if err != nil {
		t.Fatalf("hoststate update failed: %v\n%s", err, string(updateOut))
	}
	var updateResult struct {
		OK      bool   `json:"ok"`
		Action  string `json:"action"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(updateOut, &updateResult); err != nil {
		t.Fatalf("parse update json output: %v\n%s", err, string(updateOut))
	}
	if !updateResult.OK || updateResult.Action != "update" {
		t.Fatalf("unexpected update result: %s", string(updateOut))
	}

	info, err := os.Stat(statePath)
	if err != nil {
		t.Fatalf("expected state file to exist: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("state file mode = %v, want 0600", info.Mode().Perm())
	}

	load := exec.Command(binPath, "load", "--state", statePath, "--json")
	load.Dir = workDir
	loadOut, err := load.CombinedOutput()
	if err != nil {
		t.Fatalf("hoststate load failed: %v\n%s", err, string(loadOut))
	}
	var loadResult struct {
		OK       bool            `json:"ok"`
		Document json.RawMessage `json:"document"`
	}
	if err := json.Unmarshal(loadOut, &loadResult); err != nil {
		t.Fatalf("parse load json output: %v\n%s", err, string(loadOut))
	}
	if !loadResult.OK || loadResult.Document == nil {
		t.Fatalf("unexpected load result: %s", string(loadOut))
	}
	var document struct {
		System map[string]any `json:"system"`
	}
	if err := json.Unmarshal(loadResult.Document, &document); err != nil {
		t.Fatalf("decode document: %v\n%s", err, testutil.FormatJSON(loadResult.Document))
	}
	if document.System["hostname"] != "pi2" {
		t.Fatalf("document missing updated field:\n%s", testutil.FormatJSON(loadResult.Document))
	}

	watch := exec.Command(binPath, "watch", "--state", statePath, "--json", "--path", "system.hostname")
	watch.Dir = workDir
	watchOut, err := watch.CombinedOutput()
	if err != nil {
		t.Fatalf("hoststate watch failed: %v\n%s", err, string(watchOut))
	}
	var watchResult struct {
		OK         bool            `json:"ok"`
		Value      json.RawMessage `json:"value"`
		CapturedAt string          `json:"captured_at"`
	}
	if err := json.Unmarshal(watchOut, &watchResult); err != nil {
		t.Fatalf("parse watch json output: %v\n%s", err, string(watchOut))
	}
	if !watchResult.OK || string(watchResult.Value) != `"pi2"` || watchResult.CapturedAt == "" {
		t.Fatalf("unexpected watch result: %s", string(watchOut))
	}
}

func TestCLIExportDiffImport(t *testing.T) {
	root := testutil.RepoRoot(t)
	binPath := testutil.BuildHoststateBinary(t, root)

	workDir := t.TempDir()
	statePath := filepath.Join(workDir, "state.json")
	exportPath := filepath.Join(workDir, "export.json")

	seed := exec.Command(binPath, "update", "--state", statePath, "--json", "system.hostname", "pi")
	seed.Dir = workDir
	if out, err := seed.CombinedOutput(); err != nil {
		t.Fatalf("seed update failed: %v\n%s", err, string(out))
	}

	export := exec.Command(binPath, "export", "--state", statePath, "--out", exportPath)
	export.Dir = workDir
	if out, err := export.CombinedOutput(); err != nil {
		t.Fatalf("hoststate export failed: %v\n%s", err, string(out))
	}
	exported := testutil.MustReadFile(t, exportPath)
	if !json.Valid([]byte(strings.TrimSpace(string(exported)))) {
		t.Fatalf("export is not valid JSON:\n%s", string(exported))
	}

	diff := exec.Command(binPath, "diff", "--state", statePath, "--json", "--file", exportPath)
	diff.Dir = workDir
	diffOut, err := diff.CombinedOutput()
	if err != nil {
		t.Fatalf("hoststate diff failed: %v\n%s", err, string(diffOut))
	}
	var diffResult struct {
		OK   bool `json:"ok"`
		Diff struct {
			Added   map[string]json.RawMessage `json:"added"`
			Changed map[string]json.RawMessage `json:"changed"`
			Removed map[string]json.RawMessage `json:"removed"`
		} `json:"diff"`
	}
	if err := json.Unmarshal(diffOut, &diffResult); err != nil {
		t.Fatalf("parse diff json output: %v\n%s", err, string(diffOut))
	}
	if !diffResult.OK {
		t.Fatalf("unexpected diff result: %s", string(diffOut))
	}
	if len(diffResult.Diff.Added)+len(diffResult.Diff.Changed)+len(diffResult.Diff.Removed) != 0 {
		t.Fatalf("diff against own export should be empty: %s", string(diffOut))
	}

	imp := exec.Command(binPath, "import", "--state", statePath, "--json", "--file", exportPath)
	imp.Dir = workDir
	if out, err := imp.CombinedOutput(); err != nil {
		t.Fatalf("hoststate import failed: %v\n%s", err, string(out))
	}
}

func TestCLIErrorEnvelope(t *testing.T) {
	root := testutil.RepoRoot(t)
	binPath := testutil.BuildHoststateBinary(t, root)

	workDir := t.TempDir()
	statePath := filepath.Join(workDir, "state.json")
	testutil.WriteFile(t, statePath, []byte("{corrupt"))

	load := exec.Command(binPath, "load", "--state", statePath, "--json")
	load.Dir = workDir
	loadOut, err := load.CombinedOutput()
	if err == nil {
		t.Fatalf("expected load of corrupt state to fail:\n%s", string(loadOut))
	}
	if code := testutil.CommandExitCode(t, err); code != 4 {
		t.Fatalf("corrupt state exit code = %d, want 4", code)
	}
	var envelope struct {
		OK            bool   `json:"ok"`
		ErrorCode     string `json:"error_code"`
		ErrorCategory string `json:"error_category"`
		Retryable     bool   `json:"retryable"`
		CorrelationID string `json:"correlation_id"`
	}
	if err := json.Unmarshal(loadOut, &envelope); err != nil {
		t.Fatalf("parse error envelope: %v\n%s", err, string(loadOut))
	}
	if envelope.OK || envelope.ErrorCode != "state_corrupt" || envelope.ErrorCategory != "state_corrupt" {
		t.Fatalf("unexpected error envelope: %s", string(loadOut))
	}
	if envelope.CorrelationID == "" {
		t.Fatalf("error envelope missing correlation_id: %s", string(loadOut))
	}
}
