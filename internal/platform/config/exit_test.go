package config

import (
	"bytes"
	"testing"
)

func TestExitfWritesMessageAndExitsWithCode1(t *testing.T) {
	var buf bytes.Buffer
	code := -1
	prevStderr, prevExit := exitStderr, exitFunc
	exitStderr = &buf
	exitFunc = func(c int) { code = c }
	t.Cleanup(func() {
		exitStderr, exitFunc = prevStderr, prevExit
	})

	Exitf("fatal: %s", "something broke")

	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if got := buf.String(); got != "fatal: something broke\n" {
		t.Fatalf("stderr = %q", got)
	}
}
