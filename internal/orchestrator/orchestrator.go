// Package orchestrator runs the container startup sequence: schema
// migration, static-asset collection, any extra release commands, then
// replacement of the current process with the application server. Steps run
// strictly in order and any failure aborts startup with no retry; the
// container restart policy owns recovery.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jhenriquezf/cw/internal/config"
	"github.com/jhenriquezf/cw/internal/dbmigrate"
	"github.com/jhenriquezf/cw/internal/journal"
	"github.com/jhenriquezf/cw/internal/staticfiles"
)

// Step is one fail-fast startup action. Run returns a short detail string
// for the journal.
type Step struct {
	Name string
	Run  func(ctx context.Context) (string, error)
}

// Orchestrator drives the startup sequence.
type Orchestrator struct {
	cfg     *config.Config
	jnl     *journal.Journal
	metrics *Metrics

	// execFn replaces the current process; overridable in tests.
	execFn func(argv, env []string) error
}

// New builds an orchestrator. jnl may be nil when the journal is disabled.
func New(cfg *config.Config, jnl *journal.Journal) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		jnl:     jnl,
		metrics: NewMetrics(),
		execFn:  replaceProcess,
	}
}

// Up runs migrate, collectstatic, and the extra release steps, then execs
// the server. On success it never returns.
func (o *Orchestrator) Up(ctx context.Context) error {
	if err := o.cfg.Validate(); err != nil {
		return err
	}
	runID := o.startRun(ctx)

	steps := []Step{
		{Name: "migrate", Run: o.Migrate},
		{Name: "collectstatic", Run: o.CollectStatic},
	}
	for i, argv := range o.cfg.Steps.Extra {
		steps = append(steps, o.extraStep(i, argv))
	}

	for _, s := range steps {
		if err := o.runStep(ctx, runID, s); err != nil {
			o.finishRun(ctx, runID, journal.StatusFailed)
			return err
		}
	}

	argv := BuildServerArgv(o.cfg.Server)
	log.Info().Strs("argv", argv).Msg("starting server")
	// The journal entry is written before exec: on success this process no
	// longer exists to write anything.
	o.finishRun(ctx, runID, journal.StatusSucceeded)
	if err := o.execFn(argv, serverEnv()); err != nil {
		return fmt.Errorf("exec server: %w", err)
	}
	return nil
}

// Migrate applies pending schema migrations.
func (o *Orchestrator) Migrate(ctx context.Context) (string, error) {
	return dbmigrate.Apply(ctx, o.cfg.Database)
}

// CollectStatic clears and repopulates the static output directory.
func (o *Orchestrator) CollectStatic(ctx context.Context) (string, error) {
	c := &staticfiles.Collector{
		Sources:  o.cfg.Static.Sources,
		Root:     o.cfg.Static.Root,
		Manifest: o.cfg.Static.Manifest,
	}
	res, err := c.Collect(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d files, %d bytes", res.Files, res.Bytes), nil
}

func (o *Orchestrator) extraStep(i int, argv []string) Step {
	name := fmt.Sprintf("extra-%d", i+1)
	if len(argv) > 0 {
		name = argv[0]
	}
	return Step{Name: name, Run: func(ctx context.Context) (string, error) {
		if len(argv) == 0 {
			return "", fmt.Errorf("steps.extra[%d] is empty", i)
		}
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("run %v: %w", argv, err)
		}
		return "ok", nil
	}}
}

func (o *Orchestrator) runStep(ctx context.Context, runID int64, s Step) error {
	log.Info().Str("step", s.Name).Msg("running")
	start := time.Now()
	detail, err := s.Run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		o.metrics.RecordError()
		o.recordStep(ctx, runID, journal.Step{
			Name: s.Name, Status: journal.StatusFailed, Duration: elapsed, Detail: err.Error(),
		})
		return fmt.Errorf("%s: %w", s.Name, err)
	}
	o.metrics.RecordStep(elapsed)
	o.recordStep(ctx, runID, journal.Step{
		Name: s.Name, Status: journal.StatusSucceeded, Duration: elapsed, Detail: detail,
	})
	log.Info().Str("step", s.Name).Dur("elapsed", elapsed).Str("detail", detail).Msg("done")
	return nil
}

// Journal bookkeeping is best effort and never gates startup.

func (o *Orchestrator) startRun(ctx context.Context) int64 {
	if o.jnl == nil {
		return 0
	}
	id, err := o.jnl.StartRun(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("journal unavailable")
		return 0
	}
	return id
}

func (o *Orchestrator) recordStep(ctx context.Context, runID int64, s journal.Step) {
	if o.jnl == nil || runID == 0 {
		return
	}
	if err := o.jnl.RecordStep(ctx, runID, s); err != nil {
		log.Warn().Err(err).Msg("journal write failed")
	}
}

func (o *Orchestrator) finishRun(ctx context.Context, runID int64, status string) {
	if o.jnl == nil || runID == 0 {
		return
	}
	if err := o.jnl.FinishRun(ctx, runID, status); err != nil {
		log.Warn().Err(err).Msg("journal write failed")
	}
}

// BuildServerArgv renders the server command line from configuration. The
// worker pool itself lives in the server process; this only supplies its
// size and timing knobs.
func BuildServerArgv(s config.Server) []string {
	argv := []string{
		s.Command,
		s.App,
		"--bind", s.Bind,
		"--workers", strconv.Itoa(s.Workers),
		"--threads", strconv.Itoa(s.Threads),
		"--timeout", strconv.Itoa(s.TimeoutSeconds),
		"--graceful-timeout", strconv.Itoa(s.GracefulTimeoutSeconds),
		"--keep-alive", strconv.Itoa(s.KeepAliveSeconds),
		"--access-logfile", "-",
		"--error-logfile", "-",
	}
	return append(argv, s.ExtraArgs...)
}

// serverEnv passes the current environment through with unbuffered output
// forced, so server logs reach the container runtime immediately.
func serverEnv() []string {
	return append(os.Environ(), "PYTHONUNBUFFERED=1")
}
