package main

import "testing"

func TestRunNoArgs(t *testing.T) {
	if code := run(nil); code != ExitInvalidArgs {
		t.Errorf("expected ExitInvalidArgs for no args, got %d", code)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	if code := run([]string{"bogus"}); code != ExitInvalidArgs {
		t.Errorf("expected ExitInvalidArgs for unknown command, got %d", code)
	}
}

func TestRunHelp(t *testing.T) {
	for _, arg := range []string{"help", "-h", "--help"} {
		if code := run([]string{arg}); code != ExitSuccess {
			t.Errorf("expected ExitSuccess for %q, got %d", arg, code)
		}
	}
}

func TestCommandsRejectMissingCredentials(t *testing.T) {
	t.Setenv("EOGDL_USERNAME", "")
	t.Setenv("EOGDL_PASSWORD", "")

	for _, cmd := range []string{"scan", "download", "fetch"} {
		if code := run([]string{cmd}); code != ExitInvalidArgs {
			t.Errorf("%s without credentials: expected ExitInvalidArgs, got %d", cmd, code)
		}
	}
}
