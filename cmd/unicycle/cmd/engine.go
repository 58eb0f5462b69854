/*
Copyright © 2018-2023 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"

	"github.com/blacktop/unicycle/internal/config"
	"github.com/blacktop/unicycle/pkg/observer"
	"github.com/blacktop/unicycle/pkg/oracle"
	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// addTargetFlags registers the flags every riding command shares.
func addTargetFlags(cmd *cobra.Command, observerDefault string) {
	cmd.Flags().StringP("cmd", "c", "", "Target binary")
	cmd.Flags().StringP("args", "a", "", "Target arguments (shell quoted)")
	cmd.Flags().StringP("unicycle", "u", observerDefault, "Observer to run inside the engine")
	cmd.Flags().StringP("engine", "e", "pin", "Instrumentation engine (pin, ptrace, unicorn, frida)")
	cmd.Flags().StringP("pinhome", "p", "", "Pin install root (default is $PIN_HOME)")
	cmd.Flags().String("bridge", "", "Pintool hosting the observer")
	cmd.Flags().String("arch", "amd64", "Emulator architecture (unicorn)")
	cmd.Flags().Uint64("start", 0, "Start of the observed address range")
	cmd.Flags().Uint64("end", 0, "End of the observed address range (0 for the whole address space)")
	cmd.Flags().Duration("timeout", 0, "Kill a ride after this long")
	cmd.Flags().String("dir", "", "Working directory of the target")
	cmd.Flags().StringSlice("env", nil, "Extra KEY=VALUE environment for the target (repeatable)")
	cmd.Flags().Float64("rate", 0, "Start at most this many rides per second (0 for no limit)")
}

// bindTargetFlags binds the shared flags of the running command only, so that
// several commands can use the same config keys.
func bindTargetFlags(cmd *cobra.Command, name string) {
	viper.BindPFlag(name+".cmd", cmd.Flags().Lookup("cmd"))
	viper.BindPFlag(name+".args", cmd.Flags().Lookup("args"))
	viper.BindPFlag(name+".unicycle", cmd.Flags().Lookup("unicycle"))
	viper.BindPFlag(name+".dir", cmd.Flags().Lookup("dir"))
	viper.BindPFlag(name+".env", cmd.Flags().Lookup("env"))
	viper.BindPFlag("engine.kind", cmd.Flags().Lookup("engine"))
	viper.BindPFlag("engine.pinhome", cmd.Flags().Lookup("pinhome"))
	viper.BindPFlag("engine.bridge", cmd.Flags().Lookup("bridge"))
	viper.BindPFlag("engine.arch", cmd.Flags().Lookup("arch"))
	viper.BindPFlag("engine.start", cmd.Flags().Lookup("start"))
	viper.BindPFlag("engine.end", cmd.Flags().Lookup("end"))
	viper.BindPFlag("solve.timeout", cmd.Flags().Lookup("timeout"))
	viper.BindPFlag("solve.rate", cmd.Flags().Lookup("rate"))
}

// target is what to ride, as given on the command line.
type target struct {
	Path     string
	Args     []string
	Observer string
	Env      []string
}

func targetFromFlags(name string) (*target, error) {
	args, err := shellquote.Split(viper.GetString(name + ".args"))
	if err != nil {
		return nil, fmt.Errorf("failed to split --args: %v", err)
	}
	return &target{
		Path:     viper.GetString(name + ".cmd"),
		Args:     args,
		Observer: viper.GetString(name + ".unicycle"),
		Env:      viper.GetStringSlice(name + ".env"),
	}, nil
}

// newLauncher builds the engine command line builder for conf.
func newLauncher(conf *config.Config, observerName string) (oracle.Launcher, error) {
	switch conf.Engine.Kind {
	case "pin":
		p, err := oracle.NewPin(conf.Engine.PinHome, conf.Engine.Bridge)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		if _, err := observer.Lookup(observerName); err != nil {
			return nil, err
		}
		n := &oracle.Native{
			Engine: conf.Engine.Kind,
			Start:  conf.Engine.Start,
			End:    conf.Engine.End,
		}
		if conf.Engine.Arch != "" && (conf.Engine.Kind == "unicorn" || conf.Engine.Arch != "amd64") {
			n.Extra = append(n.Extra, "--arch", conf.Engine.Arch)
		}
		return n, nil
	}
}

// newOracle builds the oracle for the configured engine.
func newOracle(conf *config.Config, t *target, dir string) (*oracle.Oracle, error) {
	l, err := newLauncher(conf, t.Observer)
	if err != nil {
		return nil, err
	}
	return oracle.New(l,
		oracle.WithTimeout(conf.Solve.Timeout),
		oracle.WithDir(dir),
		oracle.WithRateLimit(conf.Solve.Rate),
		oracle.WithEnv(t.Env...),
	), nil
}
