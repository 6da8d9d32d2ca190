// Package main provides end-to-end tests for the weft CLI.
package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/weftlabs/weft/internal/cli"
)

// writeProject lays out a small project under a temp root and returns it.
func writeProject(t *testing.T, sources map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, src := range sources {
		path := filepath.Join(root, "scripts", rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
	return root
}

func defaultProject(t *testing.T) string {
	t.Helper()
	return writeProject(t, map[string]string{
		"greet.star":           "RESULT = \"hi\"\n",
		"billing/invoice.star": "RESULT = call.greet([], [])\n",
	})
}

// runCLI executes one weft command against the project root and returns the
// combined output. Global flags go first so an invoke "--" separator cannot
// swallow them.
func runCLI(t *testing.T, root string, args ...string) (string, error) {
	t.Helper()
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{
		"--project-dir", root,
		"--scripts-dir", filepath.Join(root, "scripts"),
		"--state", filepath.Join(root, ".weft", "state.db"),
	}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, defaultProject(t), "version")
	if err != nil {
		t.Errorf("version command error = %v", err)
	}
	if !strings.Contains(out, "weft") {
		t.Errorf("version output should contain 'weft', got: %s", out)
	}
}

func TestHelpCommand(t *testing.T) {
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Errorf("help command error = %v", err)
	}

	output := buf.String()
	expectedCommands := []string{"build", "check", "doctor", "list", "graph", "render", "invoke", "console", "registry", "runs", "watch", "serve", "lsp", "init"}
	for _, expected := range expectedCommands {
		if !strings.Contains(output, expected) {
			t.Errorf("help output should contain %q, got: %s", expected, output)
		}
	}
}

func TestBuildCommand(t *testing.T) {
	out, err := runCLI(t, defaultProject(t), "build")
	if err != nil {
		t.Fatalf("build command error = %v", err)
	}
	if !strings.Contains(out, "Linked 2 scripts") {
		t.Errorf("build output = %s", out)
	}
	if !strings.Contains(out, "1 static calls") {
		t.Errorf("build output = %s", out)
	}
}

func TestBuildCommandRejectsMalformed(t *testing.T) {
	root := writeProject(t, map[string]string{
		"good.star": "RESULT = 1\n",
		"bad.star":  "RESULT = call.x(1)\n",
	})

	_, err := runCLI(t, root, "build")
	if err == nil {
		t.Fatal("expected build to fail on malformed call site")
	}
	if !strings.Contains(err.Error(), "batch rejected") {
		t.Errorf("error = %v", err)
	}
}

func TestListCommand(t *testing.T) {
	root := defaultProject(t)
	if _, err := runCLI(t, root, "build"); err != nil {
		t.Fatalf("build: %v", err)
	}

	out, err := runCLI(t, root, "list")
	if err != nil {
		t.Fatalf("list command error = %v", err)
	}
	for _, want := range []string{"greet", "billing.invoice"} {
		if !strings.Contains(out, want) {
			t.Errorf("list output should contain %q, got: %s", want, out)
		}
	}
}

func TestGraphCommand(t *testing.T) {
	out, err := runCLI(t, defaultProject(t), "graph")
	if err != nil {
		t.Fatalf("graph command error = %v", err)
	}
	if !strings.Contains(out, "greet") || !strings.Contains(out, "billing.invoice") {
		t.Errorf("graph output = %s", out)
	}
}

func TestRenderCommand(t *testing.T) {
	out, err := runCLI(t, defaultProject(t), "render", "billing.invoice")
	if err != nil {
		t.Fatalf("render command error = %v", err)
	}
	if !strings.Contains(out, "weft:preamble") {
		t.Errorf("render output should contain the preamble fence, got: %s", out)
	}
}

func TestInvokeCommand(t *testing.T) {
	out, err := runCLI(t, defaultProject(t), "invoke", "billing.invoice")
	if err != nil {
		t.Fatalf("invoke command error = %v", err)
	}
	if !strings.Contains(out, "hi") {
		t.Errorf("invoke output = %s", out)
	}
}

func TestRegistryCommandSharedBackend(t *testing.T) {
	root := defaultProject(t)
	regPath := filepath.Join(root, ".weft", "registry.db")

	args := []string{"--registry-backend", "sqlite", "--registry-path", regPath}
	if _, err := runCLI(t, root, append([]string{"build"}, args...)...); err != nil {
		t.Fatalf("build: %v", err)
	}

	// The sqlite backend shares entries across commands.
	out, err := runCLI(t, root, append([]string{"registry"}, args...)...)
	if err != nil {
		t.Fatalf("registry command error = %v", err)
	}
	if !strings.Contains(out, "greet") || !strings.Contains(out, "2 entries") {
		t.Errorf("registry output = %s", out)
	}
}

func TestRunsCommand(t *testing.T) {
	root := defaultProject(t)
	if _, err := runCLI(t, root, "build"); err != nil {
		t.Fatalf("build: %v", err)
	}

	out, err := runCLI(t, root, "runs")
	if err != nil {
		t.Fatalf("runs command error = %v", err)
	}
	if !strings.Contains(out, "completed") {
		t.Errorf("runs output = %s", out)
	}
}

func TestCheckCommand(t *testing.T) {
	// No description frontmatter on either script: warnings only, exit zero.
	out, err := runCLI(t, defaultProject(t), "check")
	if err != nil {
		t.Fatalf("check command error = %v", err)
	}
	if !strings.Contains(out, "2 warning(s)") {
		t.Errorf("check output = %s", out)
	}
}

func TestCheckCommandFailsOnUnknownTarget(t *testing.T) {
	root := writeProject(t, map[string]string{
		"a.star": "RESULT = call.ghost([], [])\n",
	})

	out, err := runCLI(t, root, "check")
	if err == nil {
		t.Fatal("expected check to fail on unknown target")
	}
	if !strings.Contains(err.Error(), "check failed") {
		t.Errorf("error = %v", err)
	}
	if !strings.Contains(out, "ghost") {
		t.Errorf("check output should name the missing target, got: %s", out)
	}
}

func TestDoctorCommand(t *testing.T) {
	root := defaultProject(t)
	if _, err := runCLI(t, root, "build"); err != nil {
		t.Fatalf("build: %v", err)
	}

	out, err := runCLI(t, root, "doctor")
	if err != nil {
		t.Fatalf("doctor command error = %v", err)
	}
	for _, want := range []string{"Project Summary", "Health Checks", "Health Score"} {
		if !strings.Contains(out, want) {
			t.Errorf("doctor output should contain %q, got: %s", want, out)
		}
	}
}

func TestInitExampleProject(t *testing.T) {
	root := t.TempDir()

	if _, err := runCLI(t, root, "init", "--example", root); err != nil {
		t.Fatalf("init command error = %v", err)
	}

	out, err := runCLI(t, root, "build")
	if err != nil {
		t.Fatalf("build after init error = %v", err)
	}
	if !strings.Contains(out, "Linked 6 scripts") {
		t.Errorf("build output = %s", out)
	}

	// The static chain renders two invoice lines.
	out, err = runCLI(t, root, "invoke", "report")
	if err != nil {
		t.Fatalf("invoke report error = %v", err)
	}
	if !strings.Contains(out, "hello, cust:1: invoice due $9.90") {
		t.Errorf("invoke output = %s", out)
	}

	// The cyclic pair resolves through the registry and terminates.
	out, err = runCLI(t, root, "invoke", "billing.reminder", "--", "3")
	if err != nil {
		t.Fatalf("invoke reminder error = %v", err)
	}
	if !strings.Contains(out, "reminder #1 sent") {
		t.Errorf("invoke output = %s", out)
	}
}

func TestUnknownCommand(t *testing.T) {
	cmd := cli.NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"frobnicate"})

	if err := cmd.Execute(); err == nil {
		t.Error("expected error for unknown command")
	}
}
