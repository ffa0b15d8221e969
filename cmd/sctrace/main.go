// sctrace 跟踪单个子进程的系统调用，运行结束后报告其文件使用情况。
//
// 用法：
//
//	sctrace [flags] -- PROG [ARGS...]
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zqzqsb/sctrace/pkg/memfd"
	"github.com/zqzqsb/sctrace/pkg/pipe"
	"github.com/zqzqsb/sctrace/pkg/rlimit"
	"github.com/zqzqsb/sctrace/runner"
	"github.com/zqzqsb/sctrace/runner/trace"
	"github.com/zqzqsb/sctrace/runner/trace/filestate"
)

var (
	profilePath  string
	timeLimit    time.Duration
	memoryLimit  string
	outputLimit  string
	maxStringLen int
	workDir      string
	cpuRLimit    uint64
	sealExec     bool
	showDetails  bool
	showCounts   bool
	showFiles    bool
)

// 密封的可执行文件需要在 Run 结束前保持存活
var execFile *os.File

func main() {
	root := &cobra.Command{
		Use:   "sctrace [flags] -- PROG [ARGS...]",
		Short: "跟踪子进程的系统调用并报告文件使用情况",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(args)
		},
	}

	fs := root.Flags()
	fs.StringVarP(&profilePath, "profile", "p", "", "YAML 跟踪配置文件")
	fs.DurationVar(&timeLimit, "time", 0, "由跟踪器强制的运行时间限制")
	fs.StringVar(&memoryLimit, "memory", "", "由跟踪器强制的内存限制，例如 256m")
	fs.StringVar(&outputLimit, "output-limit", "", "收集子进程标准输出的上限，例如 64k")
	fs.IntVar(&maxStringLen, "max-string", 0, "字符串参数的最大扫描长度")
	fs.StringVar(&workDir, "workdir", "", "子进程的工作目录")
	fs.Uint64Var(&cpuRLimit, "rlimit-cpu", 0, "setrlimit CPU 时间限制（秒）")
	fs.BoolVar(&sealExec, "seal-exec", false, "把可执行文件复制到密封的 memfd 后执行")
	fs.BoolVarP(&showDetails, "verbose", "v", false, "输出每次停止点的调试信息")
	fs.BoolVar(&showCounts, "counts", false, "报告各系统调用的次数")
	fs.BoolVar(&showFiles, "files", true, "报告文件状态表")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(args []string) error {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if showDetails {
		logger.SetLevel(logrus.DebugLevel)
	}

	r, outBuf, err := buildRunner(args, logger)
	if err != nil {
		return err
	}

	res := r.Run(context.Background())
	logger.WithFields(logrus.Fields{
		"time":   res.Time,
		"memory": res.Memory,
	}).Info(res.Status.String())

	if outBuf != nil {
		outBuf.W.Close()
		<-outBuf.Done
		if int64(outBuf.Buffer.Len()) > outBuf.Max {
			res.Status = runner.StatusOutputLimitExceeded
		}
		os.Stdout.Write(outBuf.Buffer.Bytes())
	}

	report(r)

	if res.Status == runner.StatusNonzeroExitStatus {
		os.Exit(res.ExitStatus)
	}
	if res.Status != runner.StatusNormal {
		return fmt.Errorf("%s: %s", res.Status, res.Error)
	}
	return nil
}

// buildRunner 组装跟踪运行器：先加载配置文件，再用命令行旗标覆盖
func buildRunner(args []string, logger *logrus.Logger) (*trace.Runner, *pipe.Buffer, error) {
	r := &trace.Runner{
		Args:        args,
		Env:         os.Environ(),
		WorkDir:     workDir,
		State:       filestate.NewProcessState(),
		ShowDetails: showDetails,
		Logger:      logger,
	}

	if profilePath != "" {
		p, err := trace.LoadProfileFile(profilePath)
		if err != nil {
			return nil, nil, err
		}
		if r.Limit, err = p.Limit(); err != nil {
			return nil, nil, err
		}
		if r.Seccomp, err = p.Filter(); err != nil {
			return nil, nil, err
		}
		r.Counter = p.Counter()
		if p.MaxStringLen > 0 {
			maxStringLen = p.MaxStringLen
		}
	}

	cfg, err := trace.DefaultFileConfig(maxStringLen)
	if err != nil {
		return nil, nil, err
	}
	r.Config = cfg

	if timeLimit > 0 {
		r.Limit.TimeLimit = timeLimit
	}
	if memoryLimit != "" {
		if err := r.Limit.MemoryLimit.Set(memoryLimit); err != nil {
			return nil, nil, fmt.Errorf("parse memory limit: %w", err)
		}
	}
	if cpuRLimit > 0 {
		rl := rlimit.RLimits{CPU: cpuRLimit}
		r.RLimits = rl.PrepareRLimit()
	}
	if showCounts && r.Counter == nil {
		r.Counter = trace.NewSyscallCounter()
	}

	if sealExec {
		f, err := os.Open(args[0])
		if err != nil {
			return nil, nil, err
		}
		execFile, err = memfd.DupToMemfd(args[0], f)
		f.Close()
		if err != nil {
			return nil, nil, err
		}
		r.ExecFile = execFile.Fd()
	}

	var outBuf *pipe.Buffer
	files := []uintptr{0, 1, 2}
	if outputLimit != "" {
		var size runner.Size
		if err := size.Set(outputLimit); err != nil {
			return nil, nil, fmt.Errorf("parse output limit: %w", err)
		}
		outBuf, err = pipe.NewBuffer(int64(size.Byte()))
		if err != nil {
			return nil, nil, err
		}
		files[1] = outBuf.W.Fd()
	}
	r.Files = files

	return r, outBuf, nil
}

func report(r *trace.Runner) {
	if showFiles {
		files := r.State.Files()
		fmt.Fprintf(os.Stderr, "files (%d):\n", len(files))
		for _, f := range files {
			fmt.Fprintf(os.Stderr, "  %s\n", f)
		}
	}
	if showCounts && r.Counter != nil {
		counts := r.Counter.Counts()
		names := make([]string, 0, len(counts))
		for name := range counts {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintln(os.Stderr, "syscalls:")
		for _, name := range names {
			fmt.Fprintf(os.Stderr, "  %-24s %d\n", name, counts[name])
		}
	}
}
