// Package hook runs a user command for every response that produced
// sensitive-data findings.
package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maxvaer/apiprobe/internal/detect"
	"github.com/maxvaer/apiprobe/internal/scanner"
	"github.com/maxvaer/apiprobe/internal/triage"
)

// Timeout bounds one hook invocation.
const Timeout = 30 * time.Second

// payload is sent to the command on stdin.
type payload struct {
	URL      string           `json:"url"`
	Path     string           `json:"path"`
	Status   int              `json:"status"`
	Title    string           `json:"title,omitempty"`
	Findings []detect.Finding `json:"findings"`
}

// Runner executes a shell command per result with findings.
type Runner struct {
	cmd string
	log logrus.FieldLogger
}

// NewRunner creates a hook runner. cmd may use the placeholders {url},
// {path}, {status} and {count}.
func NewRunner(cmd string, log logrus.FieldLogger) *Runner {
	return &Runner{cmd: cmd, log: log}
}

// Run executes the hook for result when it was kept with findings. Failures
// are logged and never stop the scan.
func (r *Runner) Run(ctx context.Context, result scanner.Result) {
	if result.Disposition != triage.KeepWithFindings || len(result.Findings) == 0 {
		return
	}
	o := result.Outcome
	data, err := json.Marshal(payload{
		URL:      o.URL,
		Path:     o.Path,
		Status:   o.Status,
		Title:    result.Title,
		Findings: result.Findings,
	})
	if err != nil {
		r.log.Errorf("hook payload: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	expanded := strings.NewReplacer(
		"{url}", o.URL,
		"{path}", o.Path,
		"{status}", strconv.Itoa(o.Status),
		"{count}", strconv.Itoa(len(result.Findings)),
	).Replace(r.cmd)

	shell, args := shellCommand()
	cmd := exec.CommandContext(ctx, shell, append(args, expanded)...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	log := r.log.WithField("url", o.URL)
	if err != nil {
		log.WithField("stderr", strings.TrimSpace(stderr.String())).Warnf("hook failed: %v", err)
		return
	}
	if len(out) > 0 {
		log.Infof("hook: %s", strings.TrimSpace(string(out)))
	}
}

func shellCommand() (string, []string) {
	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C"}
	}
	return "sh", []string{"-c"}
}
