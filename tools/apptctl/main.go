// apptctl is an operator CLI for the dashboard API: list, export, import and
// delete appointments, trigger reminder calls, and probe service health.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/md-rashed-zaman/voicedesk/libs/grpcx"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "list":
		err = cmdList(args)
	case "export":
		err = cmdExport(args)
	case "import":
		err = cmdImport(args)
	case "delete":
		err = cmdDelete(args)
	case "remind":
		err = cmdRemind(args)
	case "calls":
		err = cmdCalls(args)
	case "status":
		err = cmdStatus(args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fatal(err.Error())
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: apptctl <command> [flags]

commands:
  list      list appointments, optionally filtered by -name, -date or -id
  export    download all appointments as JSON
  import    upload appointments from a JSON file
  delete    delete an appointment by id
  remind    place a reminder call for an appointment by id
  calls     show recent outbound calls
  status    check reminder-service gRPC health`)
}

type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func newClient(fs *flag.FlagSet) *client {
	baseURL := fs.Lookup("base-url").Value.String()
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func commonFlags(fs *flag.FlagSet) {
	fs.String("base-url", getenv("DASHBOARD_URL", "http://localhost:8082"), "dashboard base url")
	fs.String("user", getenv("DASHBOARD_USER", "admin"), "dashboard username")
	fs.String("password", getenv("DASHBOARD_PASSWORD", ""), "dashboard password")
	fs.String("token", getenv("DASHBOARD_TOKEN", ""), "bearer token (skips login)")
}

// login obtains a bearer token unless one was supplied directly.
func (c *client) login(fs *flag.FlagSet) error {
	if tok := fs.Lookup("token").Value.String(); tok != "" {
		c.token = tok
		return nil
	}

	body, err := json.Marshal(map[string]string{
		"username": fs.Lookup("user").Value.String(),
		"password": fs.Lookup("password").Value.String(),
	})
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.baseURL+"/api/v1/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login failed: status %d", resp.StatusCode)
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}
	c.token = out.Token
	return nil
}

func (c *client) do(method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

func cmdList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	commonFlags(fs)
	name := fs.String("name", "", "filter by name substring")
	date := fs.String("date", "", "filter by date substring")
	id := fs.String("id", "", "look up a single appointment id")
	_ = fs.Parse(args)

	c := newClient(fs)
	if err := c.login(fs); err != nil {
		return err
	}

	q := url.Values{}
	if *name != "" {
		q.Set("name", *name)
	}
	if *date != "" {
		q.Set("date", *date)
	}
	if *id != "" {
		q.Set("id", *id)
	}
	path := "/api/v1/appointments"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	raw, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return printJSON(raw)
}

func cmdExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	commonFlags(fs)
	out := fs.String("out", "", "write to file instead of stdout")
	_ = fs.Parse(args)

	c := newClient(fs)
	if err := c.login(fs); err != nil {
		return err
	}

	raw, err := c.do(http.MethodGet, "/api/v1/appointments/export", nil)
	if err != nil {
		return err
	}
	if *out != "" {
		if err := os.WriteFile(*out, raw, 0o644); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", *out)
		return nil
	}
	return printJSON(raw)
}

func cmdImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	commonFlags(fs)
	file := fs.String("file", "", "JSON file with appointment rows")
	_ = fs.Parse(args)

	if *file == "" {
		return fmt.Errorf("import: -file is required")
	}
	raw, err := os.ReadFile(*file)
	if err != nil {
		return err
	}

	c := newClient(fs)
	if err := c.login(fs); err != nil {
		return err
	}

	result, err := c.do(http.MethodPost, "/api/v1/appointments/import", raw)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func cmdDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	commonFlags(fs)
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("delete: expected exactly one appointment id")
	}
	id := fs.Arg(0)

	c := newClient(fs)
	if err := c.login(fs); err != nil {
		return err
	}

	if _, err := c.do(http.MethodDelete, "/api/v1/appointments/"+url.PathEscape(id), nil); err != nil {
		return err
	}
	fmt.Printf("deleted appointment %s\n", id)
	return nil
}

func cmdRemind(args []string) error {
	fs := flag.NewFlagSet("remind", flag.ExitOnError)
	commonFlags(fs)
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("remind: expected exactly one appointment id")
	}
	id := fs.Arg(0)

	c := newClient(fs)
	if err := c.login(fs); err != nil {
		return err
	}

	raw, err := c.do(http.MethodPost, "/api/v1/appointments/"+url.PathEscape(id)+"/call", nil)
	if err != nil {
		return err
	}
	return printJSON(raw)
}

func cmdCalls(args []string) error {
	fs := flag.NewFlagSet("calls", flag.ExitOnError)
	commonFlags(fs)
	limit := fs.String("limit", "", "max calls to return")
	_ = fs.Parse(args)

	c := newClient(fs)
	if err := c.login(fs); err != nil {
		return err
	}

	path := "/api/v1/calls/recent"
	if *limit != "" {
		path += "?limit=" + url.QueryEscape(*limit)
	}
	raw, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	return printJSON(raw)
}

func cmdStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	addr := fs.String("grpc-addr", getenv("REMINDER_GRPC_ADDR", "localhost:9091"), "reminder-service gRPC address")
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := grpcx.Dial(ctx, *addr, grpcx.DialOptions{})
	if err != nil {
		return fmt.Errorf("dial %s: %w", *addr, err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	fmt.Printf("reminder-service: %s\n", resp.GetStatus())
	return nil
}

func printJSON(raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		// Not JSON, print as-is.
		fmt.Println(string(raw))
		return nil
	}
	fmt.Println(buf.String())
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
