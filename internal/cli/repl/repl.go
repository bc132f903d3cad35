package repl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"judgecore/internal/cli/command"
	httpclient "judgecore/internal/cli/http"
	"judgecore/internal/cli/state"
	"judgecore/internal/submission"
	pkgerrors "judgecore/pkg/errors"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

const (
	defaultPrompt        = "judge> "
	defaultWatchInterval = time.Second
)

// Session holds REPL state.
type Session struct {
	client     *httpclient.Client
	commands   map[string]command.Command
	defaults   *state.Defaults
	statePath  string
	prettyJSON bool
	rl         *readline.Instance
}

func New(client *httpclient.Client, commands map[string]command.Command, defaults *state.Defaults, statePath string, prettyJSON bool) (*Session, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          defaultPrompt,
		HistoryFile:     historyPath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    buildCompleter(commands),
	})
	if err != nil {
		return nil, fmt.Errorf("init readline failed: %w", err)
	}
	return &Session{
		client:     client,
		commands:   commands,
		defaults:   defaults,
		statePath:  statePath,
		prettyJSON: prettyJSON,
		rl:         rl,
	}, nil
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".judgectl_history")
}

func buildCompleter(commands map[string]command.Command) *readline.PrefixCompleter {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	items := make([]readline.PrefixCompleterInterface, 0, len(names)+5)
	for _, name := range names {
		items = append(items, readline.PcItem(name))
	}
	items = append(items,
		readline.PcItem("watch"),
		readline.PcItem("set",
			readline.PcItem("base"),
			readline.PcItem("timeout"),
			readline.PcItem("user"),
			readline.PcItem("problem"),
			readline.PcItem("lang"),
		),
		readline.PcItem("show",
			readline.PcItem("config"),
			readline.PcItem("defaults"),
		),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
	return readline.NewPrefixCompleter(items...)
}

func (s *Session) Run(ctx context.Context) {
	defer func() { _ = s.rl.Close() }()
	for {
		line, err := s.rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				return
			}
			continue
		}
		if err == io.EOF {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			s.printLine("bye")
			return
		}
		if s.handleSystemCommand(line) {
			continue
		}
		if err := s.handleCommand(ctx, line); err != nil {
			s.printLine("error: %v", err)
		}
	}
}

func (s *Session) handleSystemCommand(line string) bool {
	if line == "help" {
		s.printHelp()
		return true
	}
	if strings.HasPrefix(line, "set ") {
		s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
		return true
	}
	if strings.HasPrefix(line, "show ") {
		s.handleShow(strings.TrimSpace(strings.TrimPrefix(line, "show ")))
		return true
	}
	return false
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		s.printLine("usage: set base|timeout|user|problem|lang <value>")
		return
	}
	switch parts[0] {
	case "base":
		s.client.SetBaseURL(parts[1])
		s.printLine("base set to %s", parts[1])
	case "timeout":
		dur, err := time.ParseDuration(parts[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	case "user":
		id, err := command.ParseInt64(parts[1])
		if err != nil {
			s.printLine("invalid user id: %v", err)
			return
		}
		s.defaults.UserID = id
		s.saveDefaults()
		s.printLine("default user set to %d", id)
	case "problem":
		id, err := command.ParseInt64(parts[1])
		if err != nil {
			s.printLine("invalid problem id: %v", err)
			return
		}
		s.defaults.ProblemID = id
		s.saveDefaults()
		s.printLine("default problem set to %d", id)
	case "lang":
		s.defaults.LanguageID = parts[1]
		s.saveDefaults()
		s.printLine("default language set to %s", parts[1])
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) saveDefaults() {
	if err := state.Save(s.statePath, *s.defaults); err != nil {
		s.printLine("save session state failed: %v", err)
	}
}

func (s *Session) handleShow(args string) {
	switch args {
	case "config":
		s.printLine("base: %s", s.client.BaseURL())
		s.printLine("statePath: %s", s.statePath)
	case "defaults":
		s.printLine("user: %d  problem: %d  lang: %s", s.defaults.UserID, s.defaults.ProblemID, s.defaults.LanguageID)
	default:
		s.printLine("usage: show config|defaults")
	}
}

func (s *Session) handleCommand(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}
	if tokens[0] == "watch" {
		return s.watch(ctx, tokens[1:])
	}
	cmd, ok := s.commands[tokens[0]]
	if !ok {
		return fmt.Errorf("unknown command: %s", tokens[0])
	}

	params := command.Params{}
	for _, token := range tokens[1:] {
		parts := strings.SplitN(token, "=", 2)
		if len(parts) != 2 {
			if assignPositional(cmd, params, token) {
				continue
			}
			return fmt.Errorf("invalid param: %s", token)
		}
		params.Set(parts[0], parts[1])
	}
	params.Canonicalize(cmd.Fields)

	s.applyShortcuts(cmd, params)
	s.fillDefaults(cmd, params)
	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}
	req, err := command.BuildRequest(cmd, params)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(ctx, req.Method, req.Path, req.Body)
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	return nil
}

// assignPositional lets a bare token fill the first unset required field,
// so "status <id>" works without id=.
func assignPositional(cmd command.Command, params command.Params, value string) bool {
	for _, field := range cmd.Fields {
		if field.Required && !params.Has(field.Name) {
			params.Set(field.Name, value)
			return true
		}
	}
	return false
}

func (s *Session) applyShortcuts(cmd command.Command, params command.Params) {
	if cmd.Name == "submit" {
		if params.Get("file") != "" && params.Get("code") == "" {
			params.Set("code", command.FileSentinel)
		}
	}
}

func (s *Session) fillDefaults(cmd command.Command, params command.Params) {
	if cmd.Name != "submit" {
		return
	}
	if params.Get("user_id") == "" && s.defaults.UserID > 0 {
		params.Set("user_id", fmt.Sprintf("%d", s.defaults.UserID))
	}
	if params.Get("problem_id") == "" && s.defaults.ProblemID > 0 {
		params.Set("problem_id", fmt.Sprintf("%d", s.defaults.ProblemID))
	}
	if params.Get("language_id") == "" && s.defaults.LanguageID != "" {
		params.Set("language_id", s.defaults.LanguageID)
	}
}

func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	for _, field := range cmd.Fields {
		if !field.Required {
			continue
		}
		if params.Get(field.Name) != "" {
			continue
		}
		value, err := s.promptValue(field.Prompt)
		if err != nil {
			return err
		}
		params.Set(field.Name, value)
	}
	return nil
}

func (s *Session) promptValue(prompt string) (string, error) {
	s.rl.SetPrompt(prompt + ": ")
	defer s.rl.SetPrompt(defaultPrompt)
	line, err := s.rl.Readline()
	if err != nil {
		return "", fmt.Errorf("read input failed: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// watch polls a submission until it reaches a terminal status.
func (s *Session) watch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: watch <submission_id> [interval]")
	}
	id := args[0]
	interval := defaultWatchInterval
	if len(args) > 1 {
		dur, err := time.ParseDuration(args[1])
		if err != nil {
			return fmt.Errorf("invalid interval: %v", err)
		}
		if dur > 0 {
			interval = dur
		}
	}

	path := "/api/v1/submissions/" + id
	for {
		resp, err := s.client.Do(ctx, "GET", path, nil)
		if err != nil {
			return err
		}
		code, status := extractStatus(resp.Body)
		if resp.StatusCode != http.StatusOK || code != int(pkgerrors.Success) {
			s.renderResponse(resp)
			return nil
		}
		if submission.IsTerminal(submission.Status(status)) {
			s.renderResponse(resp)
			return nil
		}
		s.printLine("%s  %s", time.Now().Format("15:04:05"), status)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func extractStatus(body []byte) (int, string) {
	var envelope struct {
		Code int `json:"code"`
		Data struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return 0, ""
	}
	return envelope.Code, envelope.Data.Status
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	if resp.TraceID != "" {
		s.printLine("HTTP %d (%s) trace=%s", resp.StatusCode, resp.Duration, resp.TraceID)
	} else {
		s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration)
	}
	if len(resp.Body) == 0 {
		return
	}
	if s.prettyJSON {
		var raw interface{}
		if err := json.Unmarshal(resp.Body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			s.printLine("%s", string(formatted))
			return
		}
	}
	s.printLine("%s", string(resp.Body))
}

func (s *Session) printHelp() {
	s.printLine("usage: <command> key=value ...")
	s.printLine("system: help | exit | watch <id> [interval] | set base|timeout|user|problem|lang | show config|defaults")

	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.printLine("  %-8s %s", name, s.commands[name].Summary)
	}
	s.printLine("examples:")
	s.printLine("  submit problem=42 user=7 lang=python3 file=./main.py")
	s.printLine("  status 7c9e4a2f-93b1-4df0-a1c2-0f6d7e8b9a01")
	s.printLine("  watch 7c9e4a2f-93b1-4df0-a1c2-0f6d7e8b9a01 500ms")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.rl.Stdout(), format+"\n", args...)
}
