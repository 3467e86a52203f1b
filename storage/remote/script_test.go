package remote

import "testing"

func TestDefaultScriptArgvOrder(t *testing.T) {
	argv := DefaultScript.Argv(5, 1000)
	if len(argv) != 2 {
		t.Fatalf("expected 2 argv, got %d", len(argv))
	}
	if argv[0] != int64(1000) || argv[1] != int64(5) {
		t.Errorf("argv = %v, want [window_ms=1000, times=5]", argv)
	}
}

func TestDefaultScriptKeys(t *testing.T) {
	keys := DefaultScript.Keys("fastex:1.2.3.4:/x:0")
	if len(keys) != 1 || keys[0] != "fastex:1.2.3.4:/x:0" {
		t.Errorf("keys = %v", keys)
	}
}

func TestDefaultScriptParseAdmitted(t *testing.T) {
	d, err := DefaultScript.Parse([]int64{0, 3})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !d.Admitted() || d.CurrentCount != 3 {
		t.Errorf("got %+v, want admitted count=3", d)
	}
}

func TestDefaultScriptParseRejected(t *testing.T) {
	d, err := DefaultScript.Parse([]int64{450, 6})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Admitted() || d.RetryAfterMS != 450 {
		t.Errorf("got %+v, want rejected retry=450", d)
	}
}

func TestDefaultScriptParseMalformed(t *testing.T) {
	if _, err := DefaultScript.Parse([]int64{1}); err == nil {
		t.Fatal("expected ScriptError for malformed result")
	}
}
