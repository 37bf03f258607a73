package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pellux-network/clog/journal"
	"github.com/pellux-network/clog/view"
)

// runIn runs clog against the log file "log" in dir, with a config path that
// does not exist unless the test writes it.
func runIn(t *testing.T, dir string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--config", filepath.Join(dir, "clog.yaml"), "--file", filepath.Join(dir, "log")}, args...)
	code := run(full, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeLog(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readLog(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, "log"))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestRun_noCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(nil, &stdout, &stderr)
	if code != 1 {
		t.Errorf("exit code = %d, wanted 1", code)
	}
	if got, e := stdout.String(), "No command provided\n"; got != e {
		t.Errorf("stdout = %q, wanted %q", got, e)
	}
}

func TestRun_flagsWithoutCommand(t *testing.T) {
	code, stdout, _ := runIn(t, t.TempDir())
	if code != 1 || stdout != "No command provided\n" {
		t.Errorf("got %d %q, wanted 1 %q", code, stdout, "No command provided\n")
	}
}

func TestRun_unknownCommand(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "* a 1\n")
	code, stdout, stderr := runIn(t, dir, "frob")
	if code != 1 {
		t.Errorf("exit code = %d, wanted 1", code)
	}
	if stdout != "" {
		t.Errorf("stdout = %q, wanted nothing", stdout)
	}
	if !strings.Contains(stderr, `unknown command "frob"`) {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRun_diagnosticsGoToStderr(t *testing.T) {
	var outside bytes.Buffer
	log.Logger = zerolog.New(&outside)
	zerolog.SetGlobalLevel(zerolog.TraceLevel)

	dir := t.TempDir()
	writeLog(t, dir, "* a 1\n")

	code, stdout, stderr := runIn(t, dir, "list")
	if code != 0 || stdout != "a\t1\n" {
		t.Fatalf("list = %d %q, stderr %q", code, stdout, stderr)
	}
	if stderr != "" {
		t.Errorf("diagnostics at the default level: %q", stderr)
	}
	if outside.Len() != 0 {
		t.Errorf("diagnostics written outside the command's writers: %q", outside.String())
	}

	code, _, stderr = runIn(t, dir, "--log-level", "debug", "list")
	if code != 0 || !strings.Contains(stderr, "No config file, using defaults") {
		t.Errorf("debug list = %d, stderr %q", code, stderr)
	}
	if outside.Len() != 0 {
		t.Errorf("diagnostics written outside the command's writers: %q", outside.String())
	}
}

func TestRun_logLevelFlag(t *testing.T) {
	dir := t.TempDir()

	code, _, stderr := runIn(t, dir, "--log-level", "loud", "append", "record", "a", "1")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr %q", code, stderr)
	}
	if !strings.Contains(stderr, "Invalid log level") || !strings.Contains(stderr, "input=loud") {
		t.Errorf("bad --log-level not reported: %q", stderr)
	}

	code, _, stderr = runIn(t, dir, "--no-color", "--log-level", "info", "append", "record", "b", "2")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr %q", code, stderr)
	}
	if !strings.Contains(stderr, "INFO") || !strings.Contains(stderr, "Line appended") {
		t.Errorf("info diagnostics missing: %q", stderr)
	}
	if strings.Contains(stderr, "\033[") {
		t.Errorf("colour codes with --no-color: %q", stderr)
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "! section1\n* alice 30\n$ alice 31\n")

	code, stdout, stderr := runIn(t, dir, "list")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr %q", code, stderr)
	}
	if e := "section1/alice\t31\n"; stdout != e {
		t.Errorf("stdout = %q, wanted %q", stdout, e)
	}

	code, stdout, _ = runIn(t, dir, "list", "--output", "json")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if e := "{\n  \"section1/alice\": [\n    \"31\"\n  ]\n}\n"; stdout != e {
		t.Errorf("json = %q, wanted %q", stdout, e)
	}

	code, _, stderr = runIn(t, dir, "list", "--output", "xml")
	if code != 1 || !strings.Contains(stderr, `unknown output format "xml"`) {
		t.Errorf("xml output: %d %q", code, stderr)
	}
}

func TestList_titles(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "* top x\n! people name age\n* alice 30\n")
	code, stdout, _ := runIn(t, dir, "list", "--titles")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if e := "top\tx\n[people]\tname\tage\npeople/alice\t30\n"; stdout != e {
		t.Errorf("stdout = %q, wanted %q", stdout, e)
	}
}

func TestList_errors(t *testing.T) {
	tests := []struct {
		name string
		log  string
		want string
	}{
		{"unresolved", "$ bob 5\n", `line 1: unresolved update: key "bob"`},
		{"unknown type", "* a 1\n# x\n", `line 2: unknown record type '#'`},
		{"malformed", "*a\n", `line 1: malformed line`},
		{"too long", "* " + strings.Repeat("x", 51) + "\n", "exceeds 50 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeLog(t, dir, tt.log)
			code, stdout, stderr := runIn(t, dir, "list")
			if code != 1 {
				t.Errorf("exit code = %d, wanted 1", code)
			}
			if stdout != "" {
				t.Errorf("partial output %q", stdout)
			}
			if !strings.HasPrefix(stderr, "clog: ") || !strings.Contains(stderr, tt.want) {
				t.Errorf("stderr = %q, wanted it to contain %q", stderr, tt.want)
			}
		})
	}
}

func TestList_missingLog(t *testing.T) {
	code, _, stderr := runIn(t, t.TempDir(), "list")
	if code != 1 || !strings.Contains(stderr, "open log") {
		t.Errorf("got %d %q", code, stderr)
	}
}

func TestRun_configFile(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "clog.yaml")
	logPath := filepath.Join(dir, "contacts")
	conf := "logfile: " + logPath + "\ndelimiter: \",\"\nduplicates: reject\n"
	if err := os.WriteFile(confPath, []byte(conf), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(logPath, []byte("* alice,Alice Smith,30\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if code := run([]string{"--config", confPath, "list"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr %q", code, stderr.String())
	}
	if e := "alice\tAlice Smith\t30\n"; stdout.String() != e {
		t.Errorf("stdout = %q, wanted %q", stdout.String(), e)
	}

	if err := os.WriteFile(logPath, []byte("* a,1\n* a,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	stdout.Reset()
	stderr.Reset()
	if code := run([]string{"--config", confPath, "list"}, &stdout, &stderr); code != 1 {
		t.Errorf("duplicate with reject policy: exit code = %d", code)
	}
	if !strings.Contains(stderr.String(), "duplicate key") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "! section1\n* alice 30\n$ alice 31\n")
	code, stdout, _ := runIn(t, dir, "check")
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if e := "ok: 3 lines, 1 headers, 1 keys\n"; stdout != e {
		t.Errorf("stdout = %q, wanted %q", stdout, e)
	}
}

func TestTrace(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "! s\n* a 1\n$ a 2\n\n* b 3\n")
	code, stdout, stderr := runIn(t, dir, "trace")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr %q", code, stderr)
	}
	want := "1\t! s\n" +
		"2\t* a 1\ts/a = [1]\n" +
		"3\t$ a 2\ts/a = [2]\n" +
		"5\t* b 3\tb = [3]\n"
	if stdout != want {
		t.Errorf("stdout = %q, wanted %q", stdout, want)
	}
}

func TestAppend(t *testing.T) {
	dir := t.TempDir()
	steps := [][]string{
		{"append", "header", "s", "name", "age"},
		{"append", "record", "alice", "30"},
		{"append", "update", "alice", "31"},
		{"append", "end"},
		{"append", "*", "bob", "1"},
	}
	for _, args := range steps {
		if code, _, stderr := runIn(t, dir, args...); code != 0 {
			t.Fatalf("%v: exit code = %d, stderr %q", args, code, stderr)
		}
	}
	if e := "! s name age\n* alice 30\n$ alice 31\n\n* bob 1\n"; readLog(t, dir) != e {
		t.Errorf("log = %q, wanted %q", readLog(t, dir), e)
	}

	// alice lives in scope s, which is closed now
	code, _, stderr := runIn(t, dir, "append", "update", "alice", "32")
	if code != 1 || !strings.Contains(stderr, `unresolved update: key "alice"`) {
		t.Errorf("unresolved append: %d %q", code, stderr)
	}
	code, _, stderr = runIn(t, dir, "append", "record", "carol", "has space")
	if code != 1 || !strings.Contains(stderr, "malformed line") {
		t.Errorf("bad field append: %d %q", code, stderr)
	}
	code, _, stderr = runIn(t, dir, "append", "comment", "x")
	if code != 1 || !strings.Contains(stderr, `unknown line type "comment"`) {
		t.Errorf("bad type append: %d %q", code, stderr)
	}
	if e := "! s name age\n* alice 30\n$ alice 31\n\n* bob 1\n"; readLog(t, dir) != e {
		t.Errorf("failed appends changed the log: %q", readLog(t, dir))
	}

	_, stdout, _ := runIn(t, dir, "list")
	if e := "bob\t1\ns/alice\t31\n"; stdout != e {
		t.Errorf("list = %q, wanted %q", stdout, e)
	}
}

func TestAppend_keyWithSeparator(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "! s\n* k 1\n\n")

	code, _, stderr := runIn(t, dir, "append", "update", "s/k", "99")
	if code != 1 || !strings.Contains(stderr, `malformed line: key "s/k" contains "/"`) {
		t.Errorf("update through the separator: %d %q", code, stderr)
	}
	if e := "! s\n* k 1\n\n"; readLog(t, dir) != e {
		t.Errorf("log = %q, wanted %q", readLog(t, dir), e)
	}
	_, stdout, _ := runIn(t, dir, "list")
	if e := "s/k\t1\n"; stdout != e {
		t.Errorf("list = %q, wanted %q", stdout, e)
	}
}

func TestCompact(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "* z 0\n! s c\n* a 1 x\n$ a 2\n* b 5\n* b 6\n")
	_, before, _ := runIn(t, dir, "list")

	code, stdout, _ := runIn(t, dir, "compact", "--dry-run")
	want := "* z 0\n! s c\n* a 2 x\n* b 6\n\n"
	if code != 0 || stdout != want {
		t.Errorf("dry run = %d %q, wanted %q", code, stdout, want)
	}
	if readLog(t, dir) == want {
		t.Error("dry run rewrote the log")
	}

	code, stdout, stderr := runIn(t, dir, "compact")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr %q", code, stderr)
	}
	if e := "compacted 6 lines into 3 keys\n"; stdout != e {
		t.Errorf("stdout = %q, wanted %q", stdout, e)
	}
	if got := readLog(t, dir); got != want {
		t.Errorf("log = %q, wanted %q", got, want)
	}

	_, after, _ := runIn(t, dir, "list")
	if before != after {
		t.Errorf("state changed by compaction:\n%s\nvs\n%s", before, after)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("leftover files: %v", entries)
	}
}

func TestImport(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "! s\n* x 1\n")
	jsonPath := filepath.Join(dir, "state.json")
	data := `{"a/b": ["1", "two!"], "c": []}`
	if err := os.WriteFile(jsonPath, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	code, stdout, stderr := runIn(t, dir, "import", jsonPath)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr %q", code, stderr)
	}
	if e := "imported 2 records\n"; stdout != e {
		t.Errorf("stdout = %q, wanted %q", stdout, e)
	}
	if e := "! s\n* x 1\n\n* c\n! a\n* b 1 two!\n\n"; readLog(t, dir) != e {
		t.Errorf("log = %q, wanted %q", readLog(t, dir), e)
	}

	_, stdout, _ = runIn(t, dir, "list")
	if e := "c\na/b\t1\ttwo!\ns/x\t1\n"; stdout != e {
		t.Errorf("list = %q, wanted %q", stdout, e)
	}
}

func TestImport_listRoundTrip(t *testing.T) {
	src := t.TempDir()
	writeLog(t, src, "! people\n* alice 30\n$ alice - berlin\n\n* bob 1\n")
	_, exported, _ := runIn(t, src, "list", "--output", "json")
	jsonPath := filepath.Join(src, "state.json")
	if err := os.WriteFile(jsonPath, []byte(exported), 0o644); err != nil {
		t.Fatal(err)
	}

	dst := t.TempDir()
	if code, _, stderr := runIn(t, dst, "import", jsonPath); code != 0 {
		t.Fatalf("import: %d %q", code, stderr)
	}
	if e := "* bob 1\n! people\n* alice 30 berlin\n\n"; readLog(t, dst) != e {
		t.Errorf("imported log = %q, wanted %q", readLog(t, dst), e)
	}
	_, want, _ := runIn(t, src, "list")
	_, got, _ := runIn(t, dst, "list")
	if got != want {
		t.Errorf("imported state %q, wanted %q", got, want)
	}
}

func TestImport_rejectsNonStrings(t *testing.T) {
	dir := t.TempDir()
	for _, data := range []string{`{"a": [1]}`, `{"a": "x"}`, `["a"]`, `{"a b": ["1"]}`, `{"s/": ["1"]}`, `{"/k": ["1"]}`} {
		jsonPath := filepath.Join(dir, "state.json")
		if err := os.WriteFile(jsonPath, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
		if code, _, _ := runIn(t, dir, "import", jsonPath); code != 1 {
			t.Errorf("import of %s: exit code = %d, wanted 1", data, code)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "log")); err == nil {
		t.Errorf("failed imports created a log: %q", readLog(t, dir))
	}
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "clog.yaml")

	var stdout, stderr bytes.Buffer
	if code := run([]string{"--config", confPath, "init"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code = %d, stderr %q", code, stderr.String())
	}
	if _, err := os.Stat(confPath); err != nil {
		t.Fatal(err)
	}
	if code := run([]string{"--config", confPath, "init"}, &stdout, &stderr); code != 1 {
		t.Errorf("second init: exit code = %d, wanted 1", code)
	}
}

func TestLiveDisplay_swap(t *testing.T) {
	var buf bytes.Buffer
	ld := &liveDisplay{w: &buf}

	st := journal.NewState()
	d := view.Render(st)
	if changed, err := ld.swap(d); err != nil || !changed {
		t.Fatalf("first swap = %v, %v", changed, err)
	}
	if changed, _ := ld.swap(view.Render(st)); changed {
		t.Error("equal display printed twice")
	}

	next := view.Display{Pages: []view.Page{{Lines: []string{"alice\t1"}}}}
	if changed, _ := ld.swap(next); !changed {
		t.Error("changed display not printed")
	}
	if !strings.HasSuffix(buf.String(), "(1 keys)\nalice\t1\n") {
		t.Errorf("output = %q", buf.String())
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "* alice 1\n")

	var stderr bytes.Buffer
	a := &app{stderr: &stderr}
	a.conf.LogFile = filepath.Join(dir, "log")
	a.conf.Duplicates = "overwrite"

	out := &syncBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.watch(ctx, &liveDisplay{w: out})
	}()

	waitFor := func(want string) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if strings.Contains(out.String(), want) {
				return
			}
			time.Sleep(20 * time.Millisecond)
		}
		t.Fatalf("timed out waiting for %q, output %q", want, out.String())
	}

	waitFor("alice\t1\n")
	if err := journal.AppendFile(a.conf.LogFile, journal.Options{}, false, journal.NewLine(journal.Update, "alice", "2")); err != nil {
		t.Fatal(err)
	}
	waitFor("alice\t2\n")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("watch returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
