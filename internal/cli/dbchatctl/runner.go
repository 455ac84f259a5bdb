package dbchatctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type call struct {
	method string
	path   string
	body   any
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("dbchatctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "dbchat API base URL")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 90*time.Second), "HTTP timeout (e.g. 90s)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	command := strings.TrimSpace(fs.Arg(0))
	req, err := buildCall(command, fs.Args()[1:], stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}
	code, responseBody, err := doRequest(ctx, client, req.method, strings.TrimRight(*baseURL, "/")+req.path, req.body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}
	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if command == "ask" {
		return printAnswer(stdout, stderr, responseBody)
	}
	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func buildCall(command string, rest []string, stderr io.Writer) (call, error) {
	switch command {
	case "health":
		return call{method: http.MethodGet, path: "/v1/health"}, nil
	case "ready":
		return call{method: http.MethodGet, path: "/v1/ready"}, nil
	case "new":
		return call{method: http.MethodPost, path: "/v1/sessions"}, nil
	case "transcript", "close":
		if len(rest) != 1 {
			return call{}, fmt.Errorf("%s requires exactly one session id", command)
		}
		method := http.MethodGet
		if command == "close" {
			method = http.MethodDelete
		}
		return call{method: method, path: sessionPath(rest[0], "")}, nil
	case "ask":
		if len(rest) < 2 {
			return call{}, fmt.Errorf("ask requires a session id and a question")
		}
		text := strings.Join(rest[1:], " ")
		return call{method: http.MethodPost, path: sessionPath(rest[0], "/messages"), body: map[string]string{"text": text}}, nil
	case "connect":
		return buildConnect(rest, stderr)
	default:
		return call{}, fmt.Errorf("unknown command %q", command)
	}
}

func buildConnect(rest []string, stderr io.Writer) (call, error) {
	if len(rest) < 1 {
		return call{}, fmt.Errorf("connect requires a session id")
	}
	fs := flag.NewFlagSet("connect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dialect := fs.String("dialect", "mssql", "mssql|postgres|duckdb|sqlite")
	host := fs.String("host", "", `server host, e.g. alpha\SQLEXPRESS`)
	port := fs.Int("port", 0, "server port (0 = driver default)")
	user := fs.String("user", "", "user name")
	password := fs.String("password", "", "password")
	database := fs.String("database", "", "database name or file path")
	trust := fs.Bool("trust-server-certificate", false, "skip TLS certificate verification (server default when unset)")
	if err := fs.Parse(rest[1:]); err != nil {
		return call{}, err
	}
	body := map[string]any{
		"dialect":  *dialect,
		"host":     *host,
		"port":     *port,
		"user":     *user,
		"password": *password,
		"database": *database,
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "trust-server-certificate" {
			body["trust_server_certificate"] = *trust
		}
	})
	return call{method: http.MethodPost, path: sessionPath(rest[0], "/connect"), body: body}, nil
}

func sessionPath(id, suffix string) string {
	return "/v1/sessions/" + url.PathEscape(strings.TrimSpace(id)) + suffix
}

func doRequest(ctx context.Context, client *http.Client, method, endpoint string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// printAnswer shows the assistant's reply. A failed turn still exits 0 since
// the chat answered, but the failure kind goes to stderr.
func printAnswer(stdout, stderr io.Writer, raw []byte) int {
	var resp struct {
		Assistant struct {
			Text string `json:"text"`
		} `json:"assistant"`
		Error *struct {
			Kind string `json:"kind"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		_, _ = fmt.Fprintf(stderr, "decode response: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, resp.Assistant.Text)
	if resp.Error != nil {
		_, _ = fmt.Fprintf(stderr, "turn failed: %s\n", resp.Error.Kind)
	}
	return 0
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: dbchatctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                          GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                           GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  new                             start a session")
	_, _ = fmt.Fprintln(w, "  connect <session> [flags]       connect the session to a database")
	_, _ = fmt.Fprintln(w, "  ask <session> <question...>     ask a question")
	_, _ = fmt.Fprintln(w, "  transcript <session>            print the transcript")
	_, _ = fmt.Fprintln(w, "  close <session>                 end the session")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
