// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/agentic-coder/orchestrator/pkg/config"
	"github.com/agentic-coder/orchestrator/pkg/logger"
)

// exit codes, per spec.md §6.
const (
	exitCompleted = 0
	exitFailed    = 1
	exitCancelled = 2
	exitStartup   = 3
)

// CLI is the top-level command tree.
type CLI struct {
	Run      RunCmd      `cmd:"" help:"Submit a new task and stream its progress to stdout."`
	Resume   ResumeCmd   `cmd:"" help:"Resume a task from its last checkpoint by thread id."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path" required:""`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple, verbose, or custom)." default:"simple"`
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("orchestrator"),
		kong.Description("Agentic task orchestrator — plan/execute/reflect over a sandboxed workspace."),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitStartup)
	}
	output := os.Stderr
	if cli.LogFile != "" {
		f, cleanup, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(exitStartup)
		}
		defer cleanup()
		output = f
	}
	logger.Init(level, output, cli.LogFormat)

	err = kctx.Run(&cli)
	if err != nil {
		if ec, ok := err.(exitCoder); ok {
			os.Exit(ec.ExitCode())
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitStartup)
	}
}

// exitCoder lets a command's Run error carry a specific process exit code
// (task failed vs. cancelled vs. a plain startup error) instead of main
// having to parse error strings to pick one.
type exitCoder interface {
	error
	ExitCode() int
}

type coded struct {
	err  error
	code int
}

func (c coded) Error() string { return c.err.Error() }
func (c coded) ExitCode() int { return c.code }

func withExitCode(err error, code int) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(exitCoder); ok {
		return err
	}
	return coded{err: err, code: code}
}
