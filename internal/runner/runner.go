package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/maxvaer/apiprobe/internal/config"
	"github.com/maxvaer/apiprobe/internal/hook"
	"github.com/maxvaer/apiprobe/internal/output"
	"github.com/maxvaer/apiprobe/internal/scanner"
	"github.com/maxvaer/apiprobe/internal/store"
	"github.com/maxvaer/apiprobe/internal/triage"
	"github.com/maxvaer/apiprobe/internal/wordlist"
	"github.com/maxvaer/apiprobe/pkg/version"
)

// Run executes the full scan pipeline for one target.
func Run(ctx context.Context, opts *config.Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	log, err := newLogger(os.Stderr, opts.LogLevel, opts.NoColor)
	if err != nil {
		return err
	}

	// 1. Load path dictionary and User-Agents.
	paths, err := wordlist.Load(opts.Dictionary, opts.IncludePaths, opts.ExcludePaths)
	if err != nil {
		return fmt.Errorf("loading dictionary: %w", err)
	}
	agents, err := wordlist.LoadUserAgents(opts.UserAgentFile, opts.UserAgents)
	if err != nil {
		return fmt.Errorf("loading user agents: %w", err)
	}

	cfg, err := buildConfig(opts, agents, log)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// 2. Create output writer.
	out, err := output.New(opts.OutputFormat, opts.OutputFile, opts.NoColor, opts.Quiet)
	if err != nil {
		return fmt.Errorf("creating output writer: %w", err)
	}
	defer out.Close()

	if err := out.WriteHeader(); err != nil {
		return err
	}

	// 3. Print banner.
	if !opts.Quiet {
		printBanner(opts, len(paths), len(agents))
	}

	// 4. Progress and pause toggle.
	progress := output.NewProgress(len(paths), opts.Quiet, opts.NoColor)
	pauser, restore := startStdinToggle(opts.Quiet, progress)
	defer restore()
	cfg.Pauser = pauser

	var hookRunner *hook.Runner
	if opts.OnFinding != "" {
		hookRunner = hook.NewRunner(opts.OnFinding, log)
	}

	var (
		mu       sync.Mutex
		writeErr error
	)
	cfg.OnResult = func(r scanner.Result) {
		mu.Lock()
		progress.Increment()
		if (r.Disposition == triage.KeepWithFindings || r.Disposition == triage.KeepURLOnly) && writeErr == nil {
			progress.Clear()
			writeErr = out.WriteResult(r)
		}
		mu.Unlock()

		if hookRunner != nil {
			hookRunner.Run(ctx, r)
		}
	}

	// 5. Scan.
	rep, err := scanner.Run(ctx, cfg, paths)
	progress.Stop()
	if err != nil {
		return err
	}
	if writeErr != nil {
		return fmt.Errorf("writing result: %w", writeErr)
	}

	// 6. Footer and summary.
	if err := out.WriteFooter(rep); err != nil {
		return err
	}
	if !opts.Quiet {
		output.PrintSummary(os.Stderr, rep, opts.NoColor)
	}

	// 7. History.
	if opts.DBPath != "" {
		db, err := store.Open(opts.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		rec, err := db.SaveReport(rep)
		if err != nil {
			return err
		}
		log.WithField("id", rec.ID).Infof("Scan saved to %s", opts.DBPath)
	}
	return nil
}

// buildConfig maps CLI options onto a scanner configuration.
func buildConfig(opts *config.Options, agents []string, log logrus.FieldLogger) (scanner.Config, error) {
	fallback, err := triage.ParseFallback(opts.Fallback)
	if err != nil {
		return scanner.Config{}, err
	}
	return scanner.Config{
		BaseURL:          opts.URL,
		Concurrency:      opts.Concurrency,
		Timeout:          opts.Timeout,
		Proxy:            opts.Proxy,
		BearerToken:      opts.AuthToken,
		UserAgents:       agents,
		CheckUserAgents:  opts.CheckUserAgents,
		Headers:          opts.Headers,
		FollowRedirects:  opts.FollowRedirects,
		VerifyTLS:        opts.VerifyTLS,
		MaxBodyBytes:     opts.MaxBody,
		RateLimit:        opts.RateLimit,
		AdaptiveThrottle: opts.AdaptiveThrottle,
		Fallback:         fallback,
		Logger:           log,
	}, nil
}

// newLogger builds the scan logger. An empty level means warn.
func newLogger(w io.Writer, level string, noColor bool) (*logrus.Logger, error) {
	if level == "" {
		level = "warn"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("--log-level: %w", err)
	}
	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{
		DisableColors:    noColor,
		FullTimestamp:    true,
		DisableTimestamp: lvl < logrus.DebugLevel,
	})
	return log, nil
}

func printBanner(opts *config.Options, pathCount, agentCount int) {
	const (
		cyan   = "\033[36m"
		white  = "\033[97m"
		dim    = "\033[2m"
		red    = "\033[31m"
		green  = "\033[32m"
		yellow = "\033[33m"
		reset  = "\033[0m"
	)

	c, w, d, r, g, y, rs := cyan, white, dim, red, green, yellow, reset
	if opts.NoColor {
		c, w, d, r, g, y, rs = "", "", "", "", "", "", ""
	}

	fmt.Fprintf(os.Stderr, `
%s    ___    ____  ____                __       %s
%s   /   |  / __ \/  _/___  _________  / /_  ___ %s
%s  / /| | / /_/ // // __ \/ ___/ __ \/ __ \/ _ \%s
%s / ___ |/ ____// // /_/ / /  / /_/ / /_/ /  __/%s
%s/_/  |_/_/   /___/ .___/_/   \____/_.___/\___/ %s %sv%s%s
%s                /_/                            %s
%s    API Path Prober                            %s
%s    with Sensitive Data Detection              %s
`,
		c, rs,
		c, rs,
		c, rs,
		c, rs,
		c, rs, d, version.Version, rs,
		c, rs,
		w, rs,
		d, rs,
	)

	authLabel := fmt.Sprintf("%sOFF%s", r, rs)
	if opts.AuthToken != "" {
		authLabel = fmt.Sprintf("%sBearer%s", g, rs)
	}
	tlsLabel := "skip verify"
	if opts.VerifyTLS {
		tlsLabel = "verify"
	}

	fmt.Fprintf(os.Stderr, "%s  ──────────────────────────────────────%s\n", d, rs)
	fmt.Fprintf(os.Stderr, "  %sTarget:%s       %s%s%s\n", d, rs, w, opts.URL, rs)
	fmt.Fprintf(os.Stderr, "  %sConcurrency:%s  %s%d%s\n", d, rs, y, opts.Concurrency, rs)
	fmt.Fprintf(os.Stderr, "  %sDictionary:%s   %s%d paths%s\n", d, rs, w, pathCount, rs)
	fmt.Fprintf(os.Stderr, "  %sUser-Agents:%s  %s%d%s\n", d, rs, w, agentCount, rs)
	if opts.RateLimit > 0 {
		fmt.Fprintf(os.Stderr, "  %sRate limit:%s   %s%.1f req/s%s\n", d, rs, y, opts.RateLimit, rs)
	}
	if opts.Proxy != "" {
		fmt.Fprintf(os.Stderr, "  %sProxy:%s        %s%s%s\n", d, rs, w, opts.Proxy, rs)
	}
	if len(opts.Headers) > 0 {
		names := make([]string, 0, len(opts.Headers))
		for k := range opts.Headers {
			names = append(names, k)
		}
		fmt.Fprintf(os.Stderr, "  %sHeaders:%s      %s%s%s\n", d, rs, w, strings.Join(names, ", "), rs)
	}
	fmt.Fprintf(os.Stderr, "  %sAuth:%s         %s\n", d, rs, authLabel)
	fmt.Fprintf(os.Stderr, "  %sTLS:%s          %s\n", d, rs, tlsLabel)
	fmt.Fprintf(os.Stderr, "  %sFallback:%s     %s\n", d, rs, opts.Fallback)
	fmt.Fprintf(os.Stderr, "%s  ──────────────────────────────────────%s\n\n", d, rs)
}
