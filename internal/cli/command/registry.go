package command

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Registry returns all judge commands keyed by name.
func Registry() map[string]Command {
	commands := []Command{
		{
			Name:         "submit",
			Method:       "POST",
			PathTemplate: "/api/v1/submissions",
			Summary:      "submit source code for judging",
			Fields: []Field{
				{Name: "problem_id", Aliases: []string{"problem"}, Prompt: "problem_id", Type: FieldInt64, Required: true},
				{Name: "user_id", Aliases: []string{"user"}, Prompt: "user_id", Type: FieldInt64, Required: true},
				{Name: "language_id", Aliases: []string{"lang", "language"}, Prompt: "language_id", Type: FieldString, Required: true},
				{Name: "code", Aliases: []string{"source", "source_code"}, Prompt: "code", Type: FieldString, Required: true},
				{Name: "file", Aliases: []string{"source_file"}, Prompt: "file", Type: FieldFile, Required: false},
			},
		},
		{
			Name:         "status",
			Method:       "GET",
			PathTemplate: "/api/v1/submissions/:id",
			Summary:      "fetch the verdict of a submission",
			Fields: []Field{
				{Name: "id", Prompt: "submission_id", Type: FieldString, Required: true},
			},
		},
		{
			Name:         "source",
			Method:       "GET",
			PathTemplate: "/api/v1/submissions/:id/source",
			Summary:      "fetch the archived source of a submission",
			Fields: []Field{
				{Name: "id", Prompt: "submission_id", Type: FieldString, Required: true},
			},
		},
		{
			Name:         "queue",
			Method:       "GET",
			PathTemplate: "/api/v1/queue/status",
			Summary:      "show queue depth and worker health",
		},
		{
			Name:         "health",
			Method:       "GET",
			PathTemplate: "/healthz",
			Summary:      "check the service is up",
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Name] = cmd
	}
	return result
}

// BuildRequest creates an HTTP request spec for the command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	path, err := buildPath(cmd.PathTemplate, params)
	if err != nil {
		return RequestSpec{}, err
	}

	var body []byte
	if cmd.Method != "GET" {
		payload, err := buildPayload(cmd, params)
		if err != nil {
			return RequestSpec{}, err
		}
		if payload != nil {
			body, err = json.Marshal(payload)
			if err != nil {
				return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
			}
		}
	}

	return RequestSpec{
		Method: cmd.Method,
		Path:   path,
		Body:   body,
	}, nil
}

func buildPath(template string, params Params) (string, error) {
	path := template
	if strings.Contains(path, ":id") {
		value := params.Get("id")
		if value == "" {
			return "", fmt.Errorf("missing path parameter: id")
		}
		path = strings.ReplaceAll(path, ":id", value)
	}
	return path, nil
}

func buildPayload(cmd Command, params Params) (interface{}, error) {
	if cmd.Name == "submit" {
		return buildSubmitPayload(params)
	}
	return nil, nil
}

func buildSubmitPayload(params Params) (interface{}, error) {
	problemID, err := ParseInt64(params.Get("problem_id"))
	if err != nil {
		return nil, fmt.Errorf("invalid problem_id: %w", err)
	}
	userID, err := ParseInt64(params.Get("user_id"))
	if err != nil {
		return nil, fmt.Errorf("invalid user_id: %w", err)
	}

	code := params.Get("code")
	if (code == "" || code == FileSentinel) && params.Get("file") != "" {
		code, err = ReadFile(params.Get("file"))
		if err != nil {
			return nil, err
		}
	}
	if code == "" {
		return nil, fmt.Errorf("code is required")
	}

	return map[string]interface{}{
		"problem_id":  problemID,
		"user_id":     userID,
		"language_id": params.Get("language_id"),
		"code":        code,
	}, nil
}
