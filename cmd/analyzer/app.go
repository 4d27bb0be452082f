package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/spacesedan/sentiboard/internal/clients"
	"github.com/spacesedan/sentiboard/internal/models"
	"github.com/spacesedan/sentiboard/internal/monitoring"
	"github.com/spacesedan/sentiboard/internal/session"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

type app struct {
	sess *session.Session
	in   *bufio.Reader
	out  io.Writer

	mu      sync.Mutex
	printed map[string]bool
}

func newApp(sess *session.Session, in io.Reader, out io.Writer) *app {
	a := &app{
		sess:    sess,
		in:      bufio.NewReader(in),
		out:     out,
		printed: make(map[string]bool),
	}
	sess.Notifications.OnChange(a.printNotifications)
	return a
}

// printNotifications writes each notification once, when it first appears.
func (a *app) printNotifications(list []models.Notification) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, n := range list {
		if a.printed[n.ID] {
			continue
		}
		a.printed[n.ID] = true
		marker := "*"
		if n.Severity == models.SeverityDestructive {
			marker = "!"
		}
		fmt.Fprintf(a.out, "%s %s: %s\n", marker, n.Title, n.Description)
	}
}

func (a *app) run(ctx context.Context, command string, args []string) int {
	switch command {
	case "analyze":
		return a.analyze(ctx, args)
	case "batch":
		return a.batch(ctx, args)
	case "stats":
		return a.stats(ctx)
	case "clear":
		return a.clear(ctx, args)
	case "watch":
		return a.watch(ctx)
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return exitOK
	default:
		fmt.Fprintf(a.out, "unknown command %q\n\n%s", command, usage)
		return exitUsage
	}
}

func (a *app) analyze(ctx context.Context, args []string) int {
	result, err := a.sess.Orchestrator.SubmitSingle(ctx, strings.Join(args, " "))
	if err != nil {
		return exitError
	}
	fmt.Fprintf(a.out, "\n%s (%s confidence)\n", strings.ToUpper(string(result.PredictedClass)), result.ConfidencePercent())
	for _, d := range result.Distribution() {
		fmt.Fprintf(a.out, "  %-9s %6s  %s\n", d.Class, d.Percent, bar(d.Probability))
	}
	return exitOK
}

func (a *app) batch(ctx context.Context, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(a.out, "batch needs exactly one file argument, or - for stdin")
		return exitUsage
	}

	var (
		raw []byte
		err error
	)
	if args[0] == "-" {
		raw, err = io.ReadAll(a.in)
	} else {
		raw, err = os.ReadFile(args[0])
	}
	if err != nil {
		fmt.Fprintf(a.out, "failed to read input: %v\n", err)
		return exitError
	}

	outcome, err := a.sess.Orchestrator.SubmitBatch(ctx, string(raw))
	if err != nil {
		return exitError
	}
	fmt.Fprintln(a.out)
	for i, item := range outcome.Items {
		switch v := item.Outcome.(type) {
		case models.PredictSuccess:
			fmt.Fprintf(a.out, "%3d  %-8s %6s  %s\n", i+1, v.Result.PredictedClass, v.Result.ConfidencePercent(), preview(item.Text))
		case models.PredictFailure:
			fmt.Fprintf(a.out, "%3d  %-8s %6s  %s (%s)\n", i+1, "failed", "-", preview(item.Text), v.Reason)
		}
	}
	return exitOK
}

func (a *app) stats(ctx context.Context) int {
	if err := a.sess.Orchestrator.Refresh(ctx); err != nil {
		fmt.Fprintf(a.out, "failed to load statistics: %v\n", err)
		return exitError
	}
	a.printSnapshot(a.sess.Stats.Current())
	return exitOK
}

func (a *app) clear(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("clear", flag.ContinueOnError)
	fs.SetOutput(a.out)
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	confirm := func(context.Context) bool {
		if *yes {
			return true
		}
		fmt.Fprint(a.out, "Delete ALL sentiment data? This cannot be undone. [y/N]: ")
		line, _ := a.in.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes"
	}

	err := a.sess.Orchestrator.ClearAll(ctx, confirm)
	switch {
	case errors.Is(err, clients.ErrClearNotConfirmed):
		fmt.Fprintln(a.out, "Aborted.")
		return exitOK
	case err != nil:
		fmt.Fprintln(a.out, "Failed to clear database")
		return exitError
	}
	return exitOK
}

func (a *app) watch(ctx context.Context) int {
	var healthy atomic.Bool
	go monitoring.MonitorOracleHealth(ctx, a.sess.Oracle, &healthy, monitoring.Config{})

	a.sess.Stats.OnChange(a.printSnapshot)
	if err := a.sess.Start(ctx, true); err != nil {
		fmt.Fprintf(a.out, "failed to open realtime channel: %v\n", err)
		return exitError
	}

	<-ctx.Done()
	return exitOK
}

func (a *app) printSnapshot(s models.StatsSnapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	fmt.Fprintf(a.out, "\nTotal entries: %d", s.TotalEntries)
	if s.LastUpdated != nil {
		fmt.Fprintf(a.out, " (last updated %s)", s.LastUpdated.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(a.out)
	for _, c := range s.PerClass {
		fmt.Fprintf(a.out, "  %-9s %5d  %5.1f%%  %s\n", c.Class, c.Count, c.Percentage, bar(c.Percentage/100))
	}
	if len(s.RecentEntries) > 0 {
		fmt.Fprintln(a.out, "Recent:")
		for _, r := range s.RecentEntries {
			fmt.Fprintf(a.out, "  %-8s %6s  %s\n", r.PredictedClass, r.ConfidencePercent(), preview(r.Text))
		}
	}
}

func bar(fraction float64) string {
	const width = 20
	n := int(fraction*width + 0.5)
	if n < 0 {
		n = 0
	}
	if n > width {
		n = width
	}
	return strings.Repeat("█", n) + strings.Repeat("·", width-n)
}

func preview(text string) string {
	const limit = 60
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit-3]) + "..."
}
