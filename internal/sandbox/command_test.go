package sandbox

import (
	"reflect"
	"testing"

	"judgecore/internal/language"
)

func TestBuildCommandExpandsPlaceholders(t *testing.T) {
	lang := language.Spec{
		ID:         "cpp17",
		SourceFile: "main.cpp",
		BinaryFile: "main",
	}
	cmd, err := buildCommand("g++ -O2 -std=c++17 -o {bin} {src}", lang)
	if err != nil {
		t.Fatalf("buildCommand: %v", err)
	}
	want := []string{"g++", "-O2", "-std=c++17", "-o", "/work/main", "/work/main.cpp"}
	if !reflect.DeepEqual(cmd, want) {
		t.Fatalf("cmd = %v, want %v", cmd, want)
	}
}

func TestBuildCommandKeepsQuotedArgs(t *testing.T) {
	lang := language.Spec{ID: "python3", SourceFile: "main.py"}
	cmd, err := buildCommand(`python3 -c "print('hi')"`, lang)
	if err != nil {
		t.Fatalf("buildCommand: %v", err)
	}
	if len(cmd) != 3 || cmd[2] != "print('hi')" {
		t.Fatalf("cmd = %v", cmd)
	}
}

func TestBuildCommandRejectsEmptyTemplate(t *testing.T) {
	if _, err := buildCommand("   ", language.Spec{}); err == nil {
		t.Fatal("empty template accepted")
	}
}

func TestBuildCommandRejectsUnbalancedQuote(t *testing.T) {
	if _, err := buildCommand(`sh -c "oops`, language.Spec{}); err == nil {
		t.Fatal("unbalanced quote accepted")
	}
}

func TestWrapWithTimeout(t *testing.T) {
	wrapped := wrapWithTimeout([]string{"/work/main"}, 1500)
	want := []string{"timeout", "-k", "1", "2s", "/work/main"}
	if !reflect.DeepEqual(wrapped, want) {
		t.Fatalf("wrapped = %v, want %v", wrapped, want)
	}
}

func TestCeilSeconds(t *testing.T) {
	cases := []struct {
		ms   int64
		want int64
	}{
		{0, 1},
		{-5, 1},
		{1, 1},
		{999, 1},
		{1000, 1},
		{1001, 2},
		{2500, 3},
	}
	for _, tc := range cases {
		if got := ceilSeconds(tc.ms); got != tc.want {
			t.Errorf("ceilSeconds(%d) = %d, want %d", tc.ms, got, tc.want)
		}
	}
}
