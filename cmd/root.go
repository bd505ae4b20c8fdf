package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/maxvaer/apiprobe/internal/config"
	"github.com/maxvaer/apiprobe/internal/reqparse"
	"github.com/maxvaer/apiprobe/internal/runner"
	"github.com/maxvaer/apiprobe/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var opts config.Options

type flagGroup struct {
	title string
	flags []string
}

var helpGroups = []flagGroup{
	{"TARGET", []string{"url", "request-file", "dictionary", "include-paths", "exclude-paths"}},
	{"RATE-LIMIT", []string{"concurrency", "timeout", "rate-limit", "adaptive-throttle"}},
	{"HTTP", []string{"header", "user-agent", "user-agent-file", "check-user-agents", "proxy", "auth-token", "follow-redirects", "verify-tls", "max-body"}},
	{"TRIAGE", []string{"fallback"}},
	{"OUTPUT", []string{"output", "format", "quiet", "no-color", "log-level", "on-finding"}},
	{"STORAGE", []string{"db"}},
}

var rootCmd = &cobra.Command{
	Use:     "apiprobe -u <url> [flags]",
	Short:   "API path prober with sensitive data detection",
	Version: version.Version,
	Long: `apiprobe probes a target for common API paths, sorts every response by
status code, and scans response bodies for credentials, tokens and personal
data. Forbidden paths are listed for follow-up.`,
	Example: `  apiprobe -u https://api.example.com
  apiprobe -u https://api.example.com -c 50 --timeout 5s
  apiprobe -u https://api.example.com -w api.txt --exclude-paths skip.txt
  apiprobe -u https://api.example.com --auth-token eyJhbGciOi...
  apiprobe -u https://api.example.com --proxy socks5://127.0.0.1:1080
  apiprobe -u https://api.example.com -o scan_report.json --format json
  apiprobe -u https://api.example.com --fallback strict --db scans.db
  apiprobe serve --listen :8080 --db scans.db
  apiprobe history --db scans.db`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		// Parse raw HTTP request file (e.g. Burp export) if provided.
		if opts.RequestFile != "" {
			tmpl, err := reqparse.ParseFile(opts.RequestFile)
			if err != nil {
				return fmt.Errorf("parsing request file: %w", err)
			}
			applyRequest(&opts, tmpl, cmd.Flags().Changed)
			if !opts.Quiet {
				fmt.Fprintf(os.Stderr, "[+] Loaded request from %s -> %s\n", opts.RequestFile, opts.URL)
			}
		}
		if opts.URL == "" {
			_ = cmd.Help()
			fmt.Fprintln(os.Stderr)
			return fmt.Errorf("target required: use -u or --request-file")
		}
		if !strings.HasPrefix(opts.URL, "http://") && !strings.HasPrefix(opts.URL, "https://") {
			return fmt.Errorf("--url must start with http:// or https://")
		}
		return opts.Validate()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return runner.Run(ctx, &opts)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	f := rootCmd.Flags()

	// Target
	f.StringVarP(&opts.URL, "url", "u", "", "Target base URL")
	f.StringVarP(&opts.RequestFile, "request-file", "r", "", "Raw HTTP request file (e.g. Burp Suite export)")
	f.StringVarP(&opts.Dictionary, "dictionary", "w", "", "Path dictionary (default: built-in API dictionary)")
	f.StringVar(&opts.IncludePaths, "include-paths", "", "File of extra paths to probe")
	f.StringVar(&opts.ExcludePaths, "exclude-paths", "", "File of paths to skip")

	// Performance
	f.IntVarP(&opts.Concurrency, "concurrency", "c", 20, "Number of concurrent requests (1-100)")
	f.DurationVar(&opts.Timeout, "timeout", 10*time.Second, "HTTP request timeout")
	f.Float64Var(&opts.RateLimit, "rate-limit", 0, "Maximum requests per second (0 = unlimited)")
	f.BoolVar(&opts.AdaptiveThrottle, "adaptive-throttle", false, "Auto back-off on 429/503 and repeated errors")

	// HTTP
	f.VarP(&headerValue{target: &opts.Headers}, "header", "H", "Custom header (Key: Value), repeatable")
	f.StringArrayVar(&opts.UserAgents, "user-agent", nil, "User-Agent to rotate through, repeatable")
	f.StringVar(&opts.UserAgentFile, "user-agent-file", "", "File with one User-Agent per line (default: built-in browser list)")
	f.BoolVar(&opts.CheckUserAgents, "check-user-agents", false, "Drop User-Agents the target does not answer with 2xx")
	f.StringVar(&opts.Proxy, "proxy", "", "HTTP/SOCKS5 proxy URL")
	f.StringVar(&opts.AuthToken, "auth-token", "", "Bearer token (JWT or opaque)")
	f.BoolVar(&opts.FollowRedirects, "follow-redirects", false, "Follow HTTP redirects")
	f.BoolVar(&opts.VerifyTLS, "verify-tls", false, "Verify TLS certificates")
	f.Int64Var(&opts.MaxBody, "max-body", 0, "Maximum response body bytes to read (default 10MiB)")

	// Triage
	f.StringVar(&opts.Fallback, "fallback", "record", "Handling of unlisted status codes: record, strict")

	// Output
	f.StringVarP(&opts.OutputFile, "output", "o", "", "Output file path")
	f.StringVar(&opts.OutputFormat, "format", "text", "Output format: text, json, csv")
	f.BoolVarP(&opts.Quiet, "quiet", "q", false, "Minimal output")
	f.BoolVar(&opts.NoColor, "no-color", false, "Disable colored output")
	f.StringVar(&opts.LogLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	f.StringVar(&opts.OnFinding, "on-finding", "", "Shell command to run for each response with findings (receives JSON on stdin)")

	// Storage
	f.StringVar(&opts.DBPath, "db", "", "SQLite file to record the scan in")

	// Custom help: categorized flags like httpx.
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != rootCmd {
			printSubcommandHelp(cmd)
			return
		}
		w := os.Stderr
		fmt.Fprint(w, helpBanner(cmd.Version))
		fmt.Fprintf(w, "%s\n\nUsage:\n  %s\n", cmd.Long, cmd.UseLine())
		fmt.Fprintf(w, "\nExamples:\n%s\n", cmd.Example)
		fmt.Fprintf(w, "\nCommands:\n")
		for _, sub := range cmd.Commands() {
			if sub.IsAvailableCommand() {
				fmt.Fprintf(w, "   %-36s%s\n", sub.Name(), sub.Short)
			}
		}
		fmt.Fprintf(w, "\nFlags:\n")
		for _, g := range helpGroups {
			fmt.Fprintf(w, "\n%s:\n", g.title)
			for _, name := range g.flags {
				if f := cmd.Flags().Lookup(name); f != nil {
					fmt.Fprintln(w, formatFlag(f))
				}
			}
		}
		fmt.Fprintln(w)
	})

	rootCmd.AddCommand(serveCmd, historyCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// applyRequest fills options from a captured request. Values given
// explicitly on the command line take precedence.
func applyRequest(o *config.Options, t *reqparse.Template, changed func(string) bool) {
	if !changed("url") {
		o.URL = t.BaseURL
	}
	if o.Headers == nil {
		o.Headers = make(map[string]string, len(t.Headers))
	}
	for key, val := range t.Headers {
		if _, exists := o.Headers[key]; !exists {
			o.Headers[key] = val
		}
	}
	if t.BearerToken != "" && !changed("auth-token") {
		o.AuthToken = t.BearerToken
	}
	if t.UserAgent != "" && !changed("user-agent") && !changed("user-agent-file") {
		o.UserAgents = []string{t.UserAgent}
	}
}

func printSubcommandHelp(cmd *cobra.Command) {
	w := os.Stderr
	fmt.Fprintf(w, "%s\n\nUsage:\n  %s\n\nFlags:\n", cmd.Short, cmd.UseLine())
	cmd.LocalFlags().VisitAll(func(f *pflag.Flag) {
		fmt.Fprintln(w, formatFlag(f))
	})
	fmt.Fprintln(w)
}

// headerValue implements pflag.Value for repeatable "Key: Value" headers.
type headerValue struct {
	target *map[string]string
}

func (v *headerValue) String() string {
	if v.target == nil || len(*v.target) == 0 {
		return ""
	}
	parts := make([]string, 0, len(*v.target))
	for k, val := range *v.target {
		parts = append(parts, k+": "+val)
	}
	sort.Strings(parts)
	return strings.Join(parts, ", ")
}

func (v *headerValue) Set(s string) error {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
		return fmt.Errorf("invalid header format %q, expected 'Key: Value'", s)
	}
	if *v.target == nil {
		*v.target = make(map[string]string)
	}
	(*v.target)[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	return nil
}

func (v *headerValue) Type() string { return "header" }

func formatFlag(f *pflag.Flag) string {
	var left string
	if f.Shorthand != "" {
		left = fmt.Sprintf("-%s, --%s", f.Shorthand, f.Name)
	} else {
		left = fmt.Sprintf("    --%s", f.Name)
	}

	typ := f.Value.Type()
	if typ != "bool" {
		left += " " + typ
	}

	// Pad to fixed column width for aligned descriptions.
	const col = 36
	for len(left) < col {
		left += " "
	}

	right := f.Usage
	def := f.DefValue
	if def != "" && def != "false" && def != "0" && def != "0s" && def != "[]" {
		right += fmt.Sprintf(" (default %s)", def)
	}

	return "   " + left + right
}

func helpBanner(ver string) string {
	if ver != "dev" && ver != "" && !strings.HasPrefix(ver, "v") {
		ver = "v" + ver
	}
	return fmt.Sprintf(`
    ___    ____  ____                __
   /   |  / __ \/  _/___  _________  / /_  ___
  / /| | / /_/ // // __ \/ ___/ __ \/ __ \/ _ \
 / ___ |/ ____// // /_/ / /  / /_/ / /_/ /  __/
/_/  |_/_/   /___/ .___/_/   \____/_.___/\___/   %s
                /_/

`, ver)
}
