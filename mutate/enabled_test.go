package mutate

import (
	"encoding/json"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestEnabledDecodeReplaces(t *testing.T) {
	want := Enabled{Append: true, Delete: true}

	got := AllEnabled()
	if err := yaml.Unmarshal([]byte("append: true\ndelete: true\n"), &got); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	if got != want {
		t.Errorf("yaml decode over AllEnabled = %+v, want %+v", got, want)
	}

	got = AllEnabled()
	if err := json.Unmarshal([]byte(`{"append":true,"delete":true}`), &got); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if got != want {
		t.Errorf("json decode over AllEnabled = %+v, want %+v", got, want)
	}

	got = AllEnabled()
	if err := json.Unmarshal([]byte(`null`), &got); err != nil || got != AllEnabled() {
		t.Errorf("json null = %+v, %v; want unchanged", got, err)
	}
}

func TestEnabledDecodeRejectsUnknown(t *testing.T) {
	var e Enabled
	if err := yaml.Unmarshal([]byte("append: true\nsmudge: true\n"), &e); err == nil {
		t.Error("yaml decode with unknown kind: error = nil")
	}
	if err := json.Unmarshal([]byte(`{"smudge":true}`), &e); err == nil {
		t.Error("json decode with unknown kind: error = nil")
	}
	if err := yaml.Unmarshal([]byte("append: maybe\n"), &e); err == nil {
		t.Error("yaml decode of non-bool: error = nil")
	}
}
