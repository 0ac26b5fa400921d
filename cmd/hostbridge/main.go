package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/bridge"
	"github.com/wippyai/hostbridge/config"
	"github.com/wippyai/hostbridge/errors"
	"github.com/wippyai/hostbridge/vm"
)

type globalFlags struct {
	configPath  string
	logLevel    string
	debugChecks bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "hostbridge",
		Short:         "Evaluate code in the embedded runtime and exercise the value bridge",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "path to a hostbridge.toml file")
	pf.StringVar(&flags.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	pf.BoolVar(&flags.debugChecks, "debug-checks", false, "assert handle liveness before every bridge call")

	root.AddCommand(newEvalCmd(flags), newReplCmd(flags), newDemoCmd(flags))
	return root
}

// loadConfig merges the config file with command line overrides.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return nil, err
		}
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.debugChecks {
		cfg.Runtime.DebugChecks = true
	}
	return cfg, cfg.Validate()
}

// session is an open runtime with the thread the command runs on.
type session struct {
	rt   *bridge.Runtime
	th   *bridge.Thread
	log  *zap.Logger
	repr bridge.Value
}

func openSession(ctx context.Context, flags *globalFlags, stdout io.Writer) (*session, error) {
	cfg, err := flags.loadConfig()
	if err != nil {
		return nil, err
	}
	if stdout != nil {
		cfg.Stdout = stdout
	}
	log, err := cfg.NewLogger()
	if err != nil {
		return nil, err
	}
	bridge.SetLogger(log)
	vm.SetLogger(log.Named("vm"))

	rt, err := bridge.Open(ctx, cfg, bridge.WithLogger(log))
	if err != nil {
		return nil, err
	}
	th, err := rt.InitThread(ctx)
	if err != nil {
		_ = rt.Shutdown(ctx, 1)
		return nil, err
	}
	base, err := th.BaseModule(ctx)
	if err != nil {
		_ = rt.Shutdown(ctx, 1)
		return nil, err
	}
	repr, err := th.MustGlobal(ctx, base, "repr")
	if err != nil {
		_ = rt.Shutdown(ctx, 1)
		return nil, err
	}
	return &session{rt: rt, th: th, log: log, repr: repr}, nil
}

func (s *session) close(ctx context.Context, code int) error {
	if err := s.th.Close(ctx); err != nil {
		s.log.Warn("thread close failed", zap.Error(err))
	}
	err := s.rt.Shutdown(ctx, code)
	_ = s.log.Sync()
	return err
}

// result is the rendered outcome of one evaluation.
type result struct {
	shown     string
	typ       string
	exception string
	message   string
}

// evaluate runs src and renders the value with repr. An exception raised by
// src is reported in the result; bridge failures are returned as errors.
func (s *session) evaluate(ctx context.Context, src string) (result, error) {
	v, err := s.th.Eval(ctx, src)
	if err != nil {
		var e *errors.Error
		if errors.As(err, &e) && e.Kind == errors.KindEvaluation {
			return result{exception: e.RuntimeType, message: e.Detail}, nil
		}
		return result{}, err
	}
	typ, err := s.th.TypeOf(ctx, v)
	if err != nil {
		return result{}, err
	}
	str, err := s.th.Call1(ctx, s.repr, v)
	if err != nil {
		return result{}, err
	}
	if err := s.th.CheckException(ctx); err != nil {
		return result{}, err
	}
	shown, err := s.th.StringOf(ctx, str)
	if err != nil {
		return result{}, err
	}
	return result{shown: shown, typ: typ}, nil
}

func (r result) failed() bool { return r.exception != "" }

func (r result) String() string {
	if r.failed() {
		if r.message == "" || r.message == r.exception {
			return "ERROR: " + r.exception
		}
		return fmt.Sprintf("ERROR: %s: %s", r.exception, r.message)
	}
	return r.shown
}
