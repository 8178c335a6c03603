package profiling

import (
	"fmt"
	"io"
	"os"
	"runtime/pprof"

	"github.com/spf13/cobra"
)

// cpuProfile is a running pprof CPU profile.
type cpuProfile struct {
	path string
	file *os.File
}

func startCPUProfile(path string) (*cpuProfile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("could not create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("could not start CPU profile: %w", err)
	}
	return &cpuProfile{path: path, file: f}, nil
}

func (c *cpuProfile) finish(w io.Writer) {
	pprof.StopCPUProfile()
	if err := c.file.Close(); err != nil {
		fmt.Fprintf(w, "CPU profile %s: %v\n", c.path, err)
		return
	}
	fmt.Fprintf(w, "CPU profile written to %s\n", c.path)
}

// CobraProfiler adds --cpu-profile and --timing to a command tree.
type CobraProfiler struct {
	profilePath string
	timing      bool
	running     *cpuProfile
}

func NewCobraProfiler() *CobraProfiler {
	return &CobraProfiler{}
}

// AddFlags registers the flags on cmd and wraps its persistent hooks. Hooks
// already set on cmd still run, after profiling starts and before it stops.
func (p *CobraProfiler) AddFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&p.profilePath, "cpu-profile", "", "Write CPU profile to file")
	flags.BoolVar(&p.timing, "timing", false, "Print a timing summary on exit")

	pre, post := cmd.PersistentPreRunE, cmd.PersistentPostRun
	cmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		if err := p.begin(); err != nil {
			return err
		}
		if pre != nil {
			return pre(c, args)
		}
		return nil
	}
	cmd.PersistentPostRun = func(c *cobra.Command, args []string) {
		if post != nil {
			post(c, args)
		}
		p.end(c.ErrOrStderr())
	}
}

func (p *CobraProfiler) begin() error {
	if p.timing {
		Enable()
	}
	if p.profilePath == "" {
		return nil
	}
	prof, err := startCPUProfile(p.profilePath)
	if err != nil {
		return err
	}
	p.running = prof
	return nil
}

func (p *CobraProfiler) end(w io.Writer) {
	if p.running != nil {
		p.running.finish(w)
		p.running = nil
	}
	if p.timing {
		Summarize(w)
	}
}
