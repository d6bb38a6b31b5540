package cli

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/alecthomas/kong"

	"github.com/budgetlog/logbook/config"
	"github.com/budgetlog/logbook/events"
	"github.com/budgetlog/logbook/expr"
	"github.com/budgetlog/logbook/loader"
	"github.com/budgetlog/logbook/logging"
	"github.com/budgetlog/logbook/operation"
	"github.com/budgetlog/logbook/output"
	"github.com/budgetlog/logbook/reconcile"
	"github.com/budgetlog/logbook/store"
	"github.com/budgetlog/logbook/telemetry"
)

// Build information, set by the entrypoint.
var (
	Version   = ""
	CommitSHA = ""
)

// Globals defines global flags available to all commands.
type Globals struct {
	Config    string `help:"Configuration file (default: logbook.yaml in the working directory or ~/.config/logbook)." short:"c" type:"path"`
	Rules     string `help:"Rules file, overriding rules.path from the configuration." short:"r" type:"path"`
	Telemetry bool   `help:"Show timing telemetry for operations."`
	LogLevel  string `help:"Log level, overriding log.level from the configuration." enum:"debug,info,warn,error," default:""`
}

type Commands struct {
	Globals

	Check      CheckCmd      `cmd:"" help:"Load and compile a rules file."`
	Import     ImportCmd     `cmd:"" help:"Import operations from a JSON file and reconcile them."`
	Report     ReportCmd     `cmd:"" help:"Aggregate stored operations into the logbook."`
	Retag      RetagCmd      `cmd:"" help:"Recompute the tags of stored operations."`
	Duplicates DuplicatesCmd `cmd:"" help:"List groups of likely duplicate operations."`
	Transfers  TransfersCmd  `cmd:"" help:"List recorded transfers."`
	Watch      WatchCmd      `cmd:"" help:"Recheck a rules file whenever it changes."`
	Doctor     DoctorCmd     `cmd:"" help:"Doctor utilities for debugging rules."`
}

// session is the shared state of one command invocation.
type session struct {
	ctx       context.Context
	cfg       config.Config
	rules     *loader.Rules
	logger    *logging.Logger
	collector telemetry.Collector
	timer     telemetry.Timer
	stderr    io.Writer
	once      sync.Once
}

// start loads configuration, builds the logger and, with --telemetry,
// starts the root timer named name. Call finish when the command ends.
func (g *Globals) start(kctx *kong.Context, name string) (*session, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	if g.Rules != "" {
		cfg.Rules.Path = g.Rules
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Component: "cli",
		Writer:    kctx.Stderr,
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("command started", "command", name, "version", Version, "commit", CommitSHA, "config", g.Config)

	s := &session{
		ctx:    logging.WithLogger(context.Background(), logger),
		cfg:    cfg,
		logger: logger,
		stderr: kctx.Stderr,
	}
	logging.SetDefault(logger)

	if g.Telemetry {
		collector := telemetry.NewTimingCollector()
		s.collector = collector
		s.ctx = telemetry.WithCollector(s.ctx, collector)
		s.timer = collector.Start(name)
	}
	return s, nil
}

// finish ends the root timer and prints the telemetry report once.
func (s *session) finish() {
	s.once.Do(func() {
		if s.collector == nil {
			return
		}
		s.timer.End()
		_, _ = fmt.Fprintln(s.stderr)
		s.collector.Report(s.stderr, output.NewStyles(s.stderr))
	})
}

func (s *session) loadRules() (*loader.Rules, error) {
	return loader.LoadRules(s.ctx, s.cfg.Rules.Path)
}

func (s *session) openStore() (*store.Store, error) {
	return store.Open(s.ctx, s.cfg.Database.Path, store.WithLogger(s.logger))
}

// sink returns the event sink configured for the session.
func (s *session) sink() (events.Sink, error) {
	if !s.cfg.AMQP.Enabled {
		return events.Nop{}, nil
	}
	return events.Dial(s.cfg.AMQP.URL, s.cfg.AMQP.Exchange, s.logger)
}

// engine wires the store, rules and sink into a reconcile engine and keeps
// the rules on the session. The returned close function releases the store
// and the sink.
func (s *session) engine() (*reconcile.Engine, *store.Store, func(), error) {
	rules, err := s.loadRules()
	if err != nil {
		return nil, nil, nil, err
	}
	s.rules = rules
	st, err := s.openStore()
	if err != nil {
		return nil, nil, nil, err
	}
	sink, err := s.sink()
	if err != nil {
		_ = st.Close()
		return nil, nil, nil, err
	}
	engine := reconcile.New(st, rules,
		reconcile.WithSink(sink),
		reconcile.WithLogger(s.logger),
		reconcile.WithDuplicateOffset(s.cfg.Duplicates.Offset),
		reconcile.WithBatchSize(s.cfg.Matcher.BatchSize),
	)
	closeAll := func() {
		if err := sink.Close(); err != nil {
			s.logger.Warn("closing event sink", "error", err)
		}
		if err := st.Close(); err != nil {
			s.logger.Warn("closing store", "error", err)
		}
	}
	return engine, st, closeAll, nil
}

// where compiles a filter rule with the rule file's variables bound. An
// empty rule selects every operation.
func (s *session) where(rule string) (operation.Predicate, error) {
	if rule == "" {
		return expr.True(operation.Schema), nil
	}
	var opts []expr.Option
	if s.rules != nil {
		opts = append(opts, expr.WithVariables(s.rules.Variables))
	}
	p, err := operation.ParsePredicate(rule, opts...)
	if err != nil {
		return operation.Predicate{}, fmt.Errorf("--where: %w", err)
	}
	return p, nil
}
