package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/sayvdo/overseer/internal/alert"
	"github.com/sayvdo/overseer/internal/api"
	"github.com/sayvdo/overseer/internal/approval"
	"github.com/sayvdo/overseer/internal/audit"
	"github.com/sayvdo/overseer/internal/config"
	"github.com/sayvdo/overseer/internal/director"
	"github.com/sayvdo/overseer/internal/dispatch"
	"github.com/sayvdo/overseer/internal/log"
	"github.com/sayvdo/overseer/internal/memory"
	"github.com/sayvdo/overseer/internal/orchestrator"
	"github.com/sayvdo/overseer/internal/queue"
	"github.com/sayvdo/overseer/internal/router"
	"github.com/sayvdo/overseer/internal/storage"
	"github.com/sayvdo/overseer/internal/tui/watch"
	"github.com/sayvdo/overseer/internal/worker"
	"github.com/sayvdo/overseer/internal/worklog"
)

const version = "0.2.0"

// stallCheckInterval is how often serve mode scans for stuck tasks.
const stallCheckInterval = 30 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	configPath, args := extractConfigFlag(os.Args[1:])
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "--status":
		os.Exit(runStatus(configPath))
	case "--audit":
		os.Exit(runAudit(configPath, args[1:]))
	case "--kill-all":
		os.Exit(runKillAll(configPath))
	case "serve":
		os.Exit(runServe(configPath))
	case "watch":
		os.Exit(runWatch(configPath))
	case "version":
		fmt.Printf("overseer version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)
	default:
		os.Exit(runTask(configPath, strings.Join(args, " ")))
	}
}

func printUsage() {
	fmt.Print(`overseer - keyword-routed task dispatch with a durable queue

Usage:
  overseer "Your task here"     Route, enqueue, and execute one task
  overseer --status             Show recent task queue status
  overseer --audit [n]          Verify the audit chain and tail the log (default 20 lines)
  overseer --kill-all           Mark all pending tasks as failed
  overseer serve                Run the read-only reporting API
  overseer watch                Live queue view in the terminal

Flags:
  --config PATH                 Configuration file (optional)

General:
  version                       Show version information
  help                          Show this help message
`)
}

// extractConfigFlag pulls a --config PATH (or --config=PATH) pair out of
// args so it can appear before or after the task text.
func extractConfigFlag(args []string) (string, []string) {
	var configPath string
	var rest []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			configPath = strings.TrimPrefix(arg, "--config=")
		default:
			rest = append(rest, arg)
		}
	}
	return configPath, rest
}

// app wires the shared components every action needs.
type app struct {
	cfg        *config.Config
	db         *sql.DB
	queue      *queue.Queue
	memory     *memory.Store
	auditLog   *audit.Log
	alerts     *alert.Emitter
	registry   *director.Registry
	dispatcher *dispatch.Dispatcher
	orch       *orchestrator.Orchestrator
}

func setup(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Setup(cfg.Service.LogLevel)

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return nil, err
	}

	auditLog, err := audit.Open(cfg.Logs.AuditPath)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	q := queue.New(db)
	mem := memory.NewStore(db)
	alerts := alert.NewEmitter(cfg.Logs.DrainPath, cfg.Logs.AlertsPath, log.WithComponent("alert"))

	gen := worker.NewGenerator(cfg.Workers.GeneratorBin, cfg.Workers.GeneratorTimeout.Std(), log.WithComponent("generator"))
	shell := worker.NewShell(cfg.Workers.SandboxDir, cfg.Workers.ShellTimeout.Std())
	scanner := worker.NewScanner(cfg.Workers.ScannerBin, cfg.Workers.ScannerDir, cfg.Workers.ScannerTimeout.Std())

	registry := director.NewRegistry(
		director.NewBuilder(gen),
		director.NewResearcher(gen),
		director.NewAnalyst(gen, shell, scanner),
	)

	var wl *worklog.Client
	if cfg.Worklog.Enabled {
		wl = worklog.New(cfg.Worklog.URL, cfg.Worklog.APIKey, cfg.Worklog.Project, log.WithComponent("worklog"))
	}

	disp := dispatch.New(q, mem, alerts, wl, registry, log.WithComponent("dispatch"))
	gate := approval.NewGate(approval.TerminalPrompter{}, auditLog)
	orch := orchestrator.New(q, disp, gate, auditLog, alerts, cfg.Task.Timeout.Std(), cfg.Task.PollInterval.Std(), log.WithComponent("orchestrator"))

	return &app{
		cfg:        cfg,
		db:         db,
		queue:      q,
		memory:     mem,
		auditLog:   auditLog,
		alerts:     alerts,
		registry:   registry,
		dispatcher: disp,
		orch:       orch,
	}, nil
}

func (a *app) close() {
	_ = a.db.Close()
}

func runTask(configPath, text string) int {
	ctx := context.Background()
	a, err := setup(ctx, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		return 1
	}
	defer a.close()

	outcome, err := a.orch.Run(ctx, text)
	if err == orchestrator.ErrDenied {
		color.Red("Task denied by user.")
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Task error: %v\n", err)
		return 1
	}

	fmt.Printf("Routed to [%s] (task %d)\n", outcome.Director, outcome.TaskID)
	if outcome.Status == queue.StatusDone {
		color.Green("Result:")
		fmt.Println(outcome.Result)
		return 0
	}
	if outcome.TimedOut {
		color.Red("Task timed out after %s", a.cfg.Task.Timeout.Std())
		return 1
	}
	color.Red("Task failed: %s", outcome.Result)
	return 1
}

func runStatus(configPath string) int {
	ctx := context.Background()
	a, err := setup(ctx, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		return 1
	}
	defer a.close()

	tasks, err := a.queue.ListTasks(ctx, 10)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status query failed: %v\n", err)
		return 1
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks yet.")
		return 0
	}

	fmt.Printf("%-5s %-12s %-10s %-15s %s\n", "ID", "Director", "Status", "Type", "Created")
	fmt.Println(strings.Repeat("-", 65))
	for _, t := range tasks {
		status := string(t.Status)
		switch t.Status {
		case queue.StatusDone:
			status = color.GreenString("%-10s", status)
		case queue.StatusFailed:
			status = color.RedString("%-10s", status)
		case queue.StatusRunning:
			status = color.YellowString("%-10s", status)
		default:
			status = fmt.Sprintf("%-10s", status)
		}
		fmt.Printf("%-5d %-12s %s %-15s %s\n",
			t.ID, t.AssignedTo, status, t.TaskType, t.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	return 0
}

func runAudit(configPath string, args []string) int {
	lines := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			fmt.Fprintf(os.Stderr, "Usage: overseer --audit [lines]\n")
			return 1
		}
		lines = n
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		return 1
	}
	log.Setup(cfg.Service.LogLevel)

	auditLog, err := audit.Open(cfg.Logs.AuditPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Audit log open failed: %v\n", err)
		return 1
	}

	// A broken digest chain means the file was edited out of band. Refuse
	// to present it as the audit record.
	if err := auditLog.Verify(); err != nil {
		fmt.Fprintf(os.Stderr, "Audit chain check failed: %v\n", err)
		return 1
	}

	entries, err := auditLog.Tail(lines)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Audit log read failed: %v\n", err)
		return 1
	}
	if len(entries) == 0 {
		fmt.Println("No audit log yet.")
		return 0
	}
	for _, e := range entries {
		ts := e.TS
		if len(ts) > 19 {
			ts = ts[:19]
		}
		detail := e.Detail
		if len(detail) > 60 {
			detail = detail[:60]
		}
		fmt.Printf("%s  %-12s %-18s %-10s %s\n", ts, e.Agent, e.Action, e.Result, detail)
	}
	return 0
}

func runKillAll(configPath string) int {
	ctx := context.Background()
	a, err := setup(ctx, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		return 1
	}
	defer a.close()

	n, err := a.orch.KillAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Kill-all failed: %v\n", err)
		return 1
	}
	fmt.Printf("Marked %d pending tasks as failed.\n", n)
	return 0
}

func runServe(configPath string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		return 1
	}
	defer a.close()

	if !a.cfg.API.Enabled {
		fmt.Fprintln(os.Stderr, "api.enabled is false; nothing to serve")
		return 1
	}

	logger := log.WithComponent("main")
	logger.Info("overseer serve starting", "version", version, "listen", a.cfg.API.Listen)

	apiServer := api.New(api.Config{
		Listen:     a.cfg.API.Listen,
		AlertsPath: a.cfg.Logs.AlertsPath,
		Directors:  router.Directors(),
	}, a.queue, log.WithComponent("api"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return apiServer.Start(gctx)
	})
	g.Go(func() error {
		ticker := time.NewTicker(stallCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				if err := a.dispatcher.StallCheck(gctx, a.cfg.Task.Timeout.Std()); err != nil {
					logger.Error("stall check failed", "error", err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("serve stopped", "error", err)
		return 1
	}
	logger.Info("overseer stopped")
	return 0
}

func runWatch(configPath string) int {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
		return 1
	}
	log.Setup("error") // keep slog quiet under the TUI

	apiURL := "http://" + cfg.API.Listen
	p := tea.NewProgram(watch.New(apiURL))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Watch failed: %v\n", err)
		return 1
	}
	return 0
}
