package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	apiclient "github.com/splax/userdesk/pkg/api/client"
)

type cliConfig struct {
	APIBaseURL string `json:"api_base_url"`
}

const defaultAPIBase = "http://localhost:3000"

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "config":
		err = commandConfig(args, os.Stdout)
	case "users":
		err = commandUsers(args, os.Stdout)
	case "health":
		err = commandHealth(args, os.Stdout)
	case "version", "--version", "-v":
		fmt.Println(strings.TrimSpace(buildVersion))
		return
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandConfig(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	apiBase := fs.String("api", "", "API base URL to remember")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*apiBase) == "" {
		fmt.Fprintln(out, cfg.APIBaseURL)
		return nil
	}
	if _, err := apiclient.New(*apiBase); err != nil {
		return err
	}
	cfg.APIBaseURL = strings.TrimSpace(*apiBase)
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "api base set to %s\n", cfg.APIBaseURL)
	return nil
}

func commandUsers(args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: userdesk users [list|get|create|update|delete]")
	}
	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("users "+sub, flag.ContinueOnError)
	apiBase := fs.String("api", "", "API base URL (overrides saved config)")
	asJSON := fs.Bool("json", !isTerminal(out), "print raw JSON")
	id := fs.String("id", "", "User identifier")
	name := fs.String("name", "", "User name")
	email := fs.String("email", "", "User email")
	age := fs.String("age", "", "User age")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	client, err := newClient(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	switch sub {
	case "list":
		users, err := client.ListUsers(ctx)
		if err != nil {
			return err
		}
		if *asJSON {
			return printJSON(out, users)
		}
		printUserTable(out, users...)
		return nil
	case "get", "delete":
		if strings.TrimSpace(*id) == "" {
			return errors.New("--id is required")
		}
		var u apiclient.User
		if sub == "get" {
			u, err = client.GetUser(ctx, *id)
		} else {
			u, err = client.DeleteUser(ctx, *id)
		}
		if err != nil {
			return err
		}
		if *asJSON {
			return printJSON(out, u)
		}
		if sub == "delete" {
			fmt.Fprintf(out, "user deleted: %s (%s)\n", u.ID, u.Email)
			return nil
		}
		printUserTable(out, u)
		return nil
	case "create":
		ageVal, err := parseAgeFlag(*age)
		if err != nil {
			return err
		}
		u, err := client.CreateUser(ctx, apiclient.CreateUserInput{Name: *name, Email: *email, Age: ageVal})
		if err != nil {
			return err
		}
		if *asJSON {
			return printJSON(out, u)
		}
		fmt.Fprintf(out, "user created: %s (%s)\n", u.ID, u.Email)
		return nil
	case "update":
		if strings.TrimSpace(*id) == "" {
			return errors.New("--id is required")
		}
		input, err := updateInputFromFlags(fs, *name, *email, *age)
		if err != nil {
			return err
		}
		u, err := client.UpdateUser(ctx, *id, input)
		if err != nil {
			return err
		}
		if *asJSON {
			return printJSON(out, u)
		}
		fmt.Fprintf(out, "user updated: %s (%s)\n", u.ID, u.Email)
		return nil
	default:
		return fmt.Errorf("unknown users command: %s", sub)
	}
}

func commandHealth(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	apiBase := fs.String("api", "", "API base URL (overrides saved config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, err := newClient(*apiBase)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h, err := client.Health(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s env=%s uptime=%.0fs\n", h.Status, h.Environment, h.Uptime)
	return nil
}

// updateInputFromFlags only sends the fields that were passed on the command line.
func updateInputFromFlags(fs *flag.FlagSet, name, email, age string) (apiclient.UpdateUserInput, error) {
	var input apiclient.UpdateUserInput
	var err error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			input.Name = &name
		case "email":
			input.Email = &email
		case "age":
			var v *int
			v, err = parseAgeFlag(age)
			input.Age = v
		}
	})
	if err != nil {
		return apiclient.UpdateUserInput{}, err
	}
	if input.Name == nil && input.Email == nil && input.Age == nil {
		return apiclient.UpdateUserInput{}, errors.New("nothing to update: pass --name, --email or --age")
	}
	return input, nil
}

func parseAgeFlag(raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("--age must be a number: %w", err)
	}
	return &n, nil
}

func newClient(override string) (*apiclient.Client, error) {
	base := strings.TrimSpace(override)
	if base == "" {
		base = strings.TrimSpace(os.Getenv("USERDESK_API"))
	}
	if base == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		base = cfg.APIBaseURL
	}
	return apiclient.New(base)
}

func printUserTable(out io.Writer, users ...apiclient.User) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tAGE\tCREATED")
	for _, u := range users {
		age := "-"
		if u.Age != nil {
			age = strconv.Itoa(*u.Age)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", u.ID, u.Name, u.Email, age, u.CreatedAt.UTC().Format(time.RFC3339))
	}
	tw.Flush()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: defaultAPIBase}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBase
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	if dir := strings.TrimSpace(os.Getenv("USERDESK_CONFIG_DIR")); dir != "" {
		return filepath.Join(dir, "config.json"), nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "userdesk", "config.json"), nil
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "userdesk CLI %s\n\n", buildVersion)
	fmt.Fprint(w, `Usage:
	userdesk config [--api http://localhost:3000]
	userdesk users list [--json]
	userdesk users get --id <id>
	userdesk users create --name <name> --email <email> [--age N]
	userdesk users update --id <id> [--name <name>] [--email <email>] [--age N]
	userdesk users delete --id <id>
	userdesk health
	userdesk version

Every command accepts --api; USERDESK_API overrides the saved base URL.
`)
}
