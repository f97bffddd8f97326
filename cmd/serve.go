package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/vibetest/internal/api"
	"github.com/joescharf/vibetest/internal/daemon"
	"github.com/joescharf/vibetest/internal/models"
	"github.com/joescharf/vibetest/internal/orchestrator"
	"github.com/joescharf/vibetest/internal/schedule"
	"github.com/joescharf/vibetest/internal/store"
)

var (
	serveDaemon bool
	servePort   int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API and schedule loop",
	Long: `Serve exposes the session engine over a REST API and fires stored
schedules while it runs. Sessions started over the API stream their
progress as server-sent events.

With --daemon the server detaches into the background; manage it with
'vibetest serve status' and 'vibetest serve stop'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveDaemon {
			return serveDaemonRun()
		}
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background serve process",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the serve process is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.Flags().BoolVarP(&serveDaemon, "daemon", "d", false, "Run in the background")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (default from config)")
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

// pidFile returns the PID file manager for the serve process.
func pidFile() *daemon.PIDFile {
	dir, err := configDirFunc()
	if err != nil {
		return daemon.NewPIDFile(daemon.DefaultPath())
	}
	return daemon.NewPIDFile(filepath.Join(dir, "vibetest-serve.pid"))
}

// serveLogPath returns where the background serve process writes its log.
func serveLogPath() string {
	dir, err := configDirFunc()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "vibetest-serve.log")
}

func listenPort() int {
	if servePort != 0 {
		return servePort
	}
	return viper.GetInt("port")
}

// refuseIfRunning errors when another process holds the PID file. Our
// own PID is ignored: when --daemon starts a child, the parent may
// record the child's PID before the child itself gets here.
func refuseIfRunning(pf *daemon.PIDFile) error {
	if pid, running := pf.IsRunning(); running && pid != os.Getpid() {
		return fmt.Errorf("serve is already running (pid %d)", pid)
	}
	return nil
}

// serveStartRun runs the API server in the foreground until a shutdown
// signal arrives.
func serveStartRun() error {
	pf := pidFile()
	if err := refuseIfRunning(pf); err != nil {
		return err
	}

	st, err := getStore()
	if err != nil {
		return err
	}

	orch := newEngine(st)
	apiSrv := api.NewServer(st, orch, newAggregator(st), defaultAgents())
	orch.Notify = apiSrv.Publish

	port := listenPort()
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: apiSrv.Router(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer stop()

	// Record our PID so stop/status work for foreground runs too.
	if err := pf.Write(); err != nil {
		ui.Warning("could not write PID file: %v", err)
	}
	defer func() { _ = pf.Remove() }()

	sched := schedule.NewScheduler(st)
	go sched.Run(ctx, func(ctx context.Context, s *models.Schedule) error {
		return launchScheduled(ctx, st, orch, s)
	})

	errCh := make(chan error, 1)
	go func() {
		ui.Info("Serving API on http://localhost:%d", port)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	ui.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// launchScheduled starts one session for a due schedule and blocks
// until it drains.
func launchScheduled(ctx context.Context, st store.Store, orch *orchestrator.Orchestrator, sched *models.Schedule) error {
	session := &models.Session{
		BaseURL:   sched.BaseURL,
		ProjectID: sched.ProjectID,
		Modes:     sched.Modes,
	}
	if err := st.CreateSession(ctx, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	_, err := orch.RunSession(ctx, orchestrator.Options{
		SessionID:   session.ID,
		BaseURL:     sched.BaseURL,
		Modes:       sched.Modes,
		Concurrency: sched.Agents,
		ProjectID:   sched.ProjectID,
	})
	return err
}

// serveDaemonRun re-executes the binary detached and records its PID.
func serveDaemonRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("serve is already running (pid %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}

	logPath := serveLogPath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	args := []string{"serve"}
	if servePort != 0 {
		args = append(args, "--port", strconv.Itoa(servePort))
	}

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	if err := pf.WritePID(child.Process.Pid); err != nil {
		ui.Warning("could not write PID file: %v", err)
	}

	ui.Success("Serve started in background (pid %d)", child.Process.Pid)
	ui.Info("Log: %s", logPath)
	return nil
}

// serveStopRun signals the background process and escalates to KILL if
// it does not exit within a few seconds.
func serveStopRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		// Drop a stale PID file if one was left behind.
		_ = pf.Remove()
		return fmt.Errorf("serve is not running")
	}

	if err := pf.Signal(sigTERM()); err != nil {
		return fmt.Errorf("stop serve (pid %d): %w", pid, err)
	}

	for range 50 {
		if _, still := pf.IsRunning(); !still {
			_ = pf.Remove()
			ui.Success("Serve stopped (pid %d)", pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	_ = pf.Signal(sigKILL())
	_ = pf.Remove()
	ui.Warning("Serve did not exit in time, killed (pid %d)", pid)
	return nil
}

func serveStatusRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		ui.Info("Serve is not running")
		return nil
	}

	ui.Success("Serve is running (pid %d)", pid)
	ui.Info("Log: %s", serveLogPath())
	return nil
}
