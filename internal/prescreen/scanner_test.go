package prescreen

import (
	"testing"
)

func TestScanRejectsMatchedSource(t *testing.T) {
	s, err := NewScanner(DefaultRules())
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}

	tests := []struct {
		name     string
		language string
		source   string
		wantRule string
	}{
		{
			name:     "c system call",
			language: "cpp17",
			source:   "int main() { system(\"rm -rf /\"); }",
			wantRule: "c-system-call",
		},
		{
			name:     "c exec call",
			language: "c17",
			source:   "int main() { execve(\"/bin/sh\", 0, 0); }",
			wantRule: "c-exec-call",
		},
		{
			name:     "c unsafe buffer function",
			language: "c17",
			source:   "int main() { char b[8]; gets(b); }",
			wantRule: "c-unsafe-buffer",
		},
		{
			name:     "c raw socket",
			language: "cpp17",
			source:   "int main() { int fd = socket(AF_INET, SOCK_STREAM, 0); }",
			wantRule: "c-raw-socket",
		},
		{
			name:     "python subprocess",
			language: "python3",
			source:   "import subprocess\nsubprocess.run(['ls'])",
			wantRule: "python-process-spawn",
		},
		{
			name:     "python fork",
			language: "python3",
			source:   "import os\nwhile True: os.fork()",
			wantRule: "python-process-spawn",
		},
		{
			name:     "node child process",
			language: "javascript",
			source:   "const cp = require('child_process')",
			wantRule: "node-child-process",
		},
		{
			name:     "java process builder",
			language: "java17",
			source:   "new ProcessBuilder(\"sh\").start();",
			wantRule: "java-runtime-exec",
		},
		{
			name:     "sensitive path applies to all languages",
			language: "go",
			source:   `data, _ := os.ReadFile("/etc/passwd")`,
			wantRule: "sensitive-path",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches := s.Scan(tt.language, tt.source)
			if len(matches) == 0 {
				t.Fatalf("Scan(%q) passed, want rejection by %s", tt.source, tt.wantRule)
			}
			if matches[0].RuleName != tt.wantRule {
				t.Fatalf("rejected by %q, want %q", matches[0].RuleName, tt.wantRule)
			}
			if matches[0].Reason == "" {
				t.Fatal("rejection has no reason")
			}
		})
	}
}

func TestScanCollectsAllFindings(t *testing.T) {
	s, err := NewScanner(DefaultRules())
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}

	source := `int main() { char b[8]; strcpy(b, "x"); system("sh"); }`
	matches := s.Scan("c17", source)
	if len(matches) != 2 {
		t.Fatalf("got %d findings, want 2: %+v", len(matches), matches)
	}
	if matches[0].RuleName != "c-system-call" || matches[1].RuleName != "c-unsafe-buffer" {
		t.Fatalf("findings out of rule order: %+v", matches)
	}
}

func TestScanPassesCleanSource(t *testing.T) {
	s, err := NewScanner(DefaultRules())
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}

	clean := []struct {
		language string
		source   string
	}{
		{"cpp17", "#include <iostream>\nint main() { int a, b; std::cin >> a >> b; std::cout << a + b; }"},
		{"python3", "a, b = map(int, input().split())\nprint(a + b)"},
		{"javascript", "const [a, b] = require('fs').readFileSync(0, 'utf8').split(' ').map(Number); console.log(a + b)"},
	}
	for _, tt := range clean {
		if matches := s.Scan(tt.language, tt.source); len(matches) > 0 {
			t.Errorf("clean %s source rejected by %s", tt.language, matches[0].RuleName)
		}
	}
}

func TestScanLanguageScoping(t *testing.T) {
	s, err := NewScanner(DefaultRules())
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}

	// "system(" in a Python string is a different language's rule.
	source := "print('system(x) is just text here')"
	if matches := s.Scan("python3", source); len(matches) > 0 {
		t.Fatalf("python source rejected by C rule %s", matches[0].RuleName)
	}
}

func TestScanDeterministic(t *testing.T) {
	s, err := NewScanner(DefaultRules())
	if err != nil {
		t.Fatalf("NewScanner: %v", err)
	}
	source := "import subprocess"
	first := s.Scan("python3", source)
	for i := 0; i < 10; i++ {
		matches := s.Scan("python3", source)
		if len(matches) != len(first) {
			t.Fatal("Scan is not deterministic")
		}
		for j := range matches {
			if matches[j] != first[j] {
				t.Fatal("Scan is not deterministic")
			}
		}
	}
}

func TestNewScannerRejectsBadPattern(t *testing.T) {
	_, err := NewScanner([]Rule{{Name: "broken", Pattern: "("}})
	if err == nil {
		t.Fatal("NewScanner accepted an invalid pattern")
	}
}

func TestNewScannerRequiresRuleName(t *testing.T) {
	_, err := NewScanner([]Rule{{Pattern: "x"}})
	if err == nil {
		t.Fatal("NewScanner accepted an unnamed rule")
	}
}
