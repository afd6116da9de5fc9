package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agentconsole/agentconsole/internal/testutil"
)

func writeSettings(testingHandle *testing.T, dir string, content string) {
	testingHandle.Helper()
	testutil.RequireNoError(testingHandle, os.MkdirAll(filepath.Join(dir, configDirName), 0o755), "create settings dir")
	testutil.RequireNoError(testingHandle, os.WriteFile(filepath.Join(dir, configDirName, "config.yaml"), []byte(content), 0o600), "write settings")
}

func TestLoadSettingsPrecedence(testingHandle *testing.T) {
	// Arrange a temporary HOME and project tree with layered settings.
	tempDir := testingHandle.TempDir()
	homeDir := filepath.Join(tempDir, "home")
	writeSettings(testingHandle, homeDir, "endpoint: http://user:1/invocations\ntimeout_ms: 1000\nheaders:\n  X-User: u\n")

	repoDir := filepath.Join(tempDir, "repo")
	testutil.RequireNoError(testingHandle, os.MkdirAll(filepath.Join(repoDir, ".git"), 0o755), "create repo")
	writeSettings(testingHandle, repoDir, `{"endpoint":"http://project:2/invocations","fields":{"session":"abc"}}`)

	localDir := filepath.Join(repoDir, "sub")
	writeSettings(testingHandle, localDir, "endpoint: localhost:3/invocations\ncustom_fields:\n  - key: limit\n    type: number\n    value: \"5\"\n")

	testingHandle.Setenv("HOME", homeDir)

	// Act.
	cfg, err := Load(localDir, nil, "")

	// Assert.
	testutil.RequireNoError(testingHandle, err, "load settings")
	testutil.RequireEqual(testingHandle, cfg.Endpoint, "http://localhost:3/invocations", "local endpoint wins")
	testutil.RequireEqual(testingHandle, cfg.TimeoutMS, 1000, "user timeout kept")
	testutil.RequireEqual(testingHandle, cfg.Headers["X-User"], "u", "user header kept")
	testutil.RequireEqual(testingHandle, cfg.Fields["session"], "abc", "project field kept")
	testutil.RequireEqual(testingHandle, cfg.Fields["limit"], float64(5), "typed custom field")
	testutil.RequireEqual(testingHandle, len(cfg.Sources), 3, "sources")
}

func TestLoadSettingsSourcesAndOverride(testingHandle *testing.T) {
	tempDir := testingHandle.TempDir()
	homeDir := filepath.Join(tempDir, "home")
	writeSettings(testingHandle, homeDir, "endpoint: http://user:1/invocations\ncapture: true\n")
	workDir := filepath.Join(tempDir, "work")
	writeSettings(testingHandle, workDir, "endpoint: http://local:2/invocations\n")
	testingHandle.Setenv("HOME", homeDir)

	cfg, err := Load(workDir, []string{"user"}, `{"log_level":"debug"}`)

	testutil.RequireNoError(testingHandle, err, "load settings")
	testutil.RequireEqual(testingHandle, cfg.Endpoint, "http://user:1/invocations", "local source skipped")
	testutil.RequireTrue(testingHandle, cfg.Capture, "capture from user")
	testutil.RequireEqual(testingHandle, cfg.LogLevel, "debug", "inline override")
}

func TestLoadDefaultsWithoutSettings(testingHandle *testing.T) {
	testingHandle.Setenv("HOME", testingHandle.TempDir())

	cfg, err := Load(testingHandle.TempDir(), nil, "")

	testutil.RequireNoError(testingHandle, err, "load defaults")
	testutil.RequireEqual(testingHandle, cfg.Endpoint, "http://localhost:8080/invocations", "default endpoint")
	testutil.RequireEqual(testingHandle, cfg.TimeoutMS, DefaultTimeoutMS, "default timeout")
	testutil.RequireEqual(testingHandle, cfg.LogLevel, "info", "default level")
}

func TestLoadRejectsInvalidEndpoint(testingHandle *testing.T) {
	testingHandle.Setenv("HOME", testingHandle.TempDir())

	_, err := Load(testingHandle.TempDir(), nil, `{"endpoint":"ftp://nowhere"}`)

	testutil.RequireErrorIs(testingHandle, err, ErrConfigInvalid, "invalid endpoint")
}

func TestSetHeader(testingHandle *testing.T) {
	cfg := Defaults()

	testutil.RequireNoError(testingHandle, cfg.SetHeader("X-Trace=1"), "equals form")
	testutil.RequireNoError(testingHandle, cfg.SetHeader("X-Team: core"), "colon form")

	testutil.RequireEqual(testingHandle, cfg.Headers, map[string]string{"X-Trace": "1", "X-Team": "core"}, "headers")
	testutil.RequireTrue(testingHandle, cfg.SetHeader("novalue") != nil, "malformed header")
}
