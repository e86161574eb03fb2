package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/justyntemme/fexplorer/internal/app"
	"github.com/justyntemme/fexplorer/internal/config"
	"github.com/justyntemme/fexplorer/internal/fs"
	"github.com/justyntemme/fexplorer/internal/logging"
	"github.com/justyntemme/fexplorer/internal/nav"
	"github.com/justyntemme/fexplorer/internal/session"
	"github.com/justyntemme/fexplorer/internal/store"
	"github.com/justyntemme/fexplorer/internal/trash"
)

const usage = `usage: fexplorer [-config file] [-v] <command> [args]

commands:
  ls [-a] [-d] [dir]        list a directory
  touch <dir> <name>        create an empty file
  mkdir <dir> <name>        create a folder
  rm <path>                 delete a file or folder recursively
  trash <path>              move to the trash
  trash -l                  show what is in the trash
  cp [-bg] <src> <destdir>  copy; -bg queues a background job
  jobs [list|run]           show or run queued copies
  watch [dir]               keep listing a directory as it changes
  config [path|reset]       show the config file or reset it
`

func main() {
	configPath := flag.String("config", "", "config file (default ~/.config/fexplorer/config.json)")
	verbose := flag.Bool("v", false, "log at debug level")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, *configPath, *verbose, flag.Arg(0), flag.Args()[1:])
	stop()
	logging.Sync()

	if err != nil {
		fmt.Fprintf(os.Stderr, "fexplorer: %v\n", err)
		os.Exit(1)
	}
}

type cli struct {
	app  *app.App
	out  io.Writer
	cwd  string
	home string
}

func run(ctx context.Context, configPath string, verbose bool, cmd string, args []string) error {
	mgr := config.NewManager(configPath)
	if cmd == "config" {
		return configCmd(mgr, args)
	}
	if err := mgr.Load(); err != nil {
		return err
	}
	cfg := mgr.Get()
	if err := mgr.ParseError(); err != nil {
		fmt.Fprintf(os.Stderr, "fexplorer: %s: %v (using defaults)\n", mgr.Path(), err)
	}

	if err := logging.Init(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.Output,
	}); err != nil {
		return err
	}
	if verbose {
		logging.SetLevel("debug")
	}

	c := &cli{out: os.Stdout}
	c.cwd, _ = os.Getwd()
	c.home, _ = os.UserHomeDir()

	a, err := app.New(cfg, app.WithJobHook(c.jobFinished))
	if err != nil {
		return err
	}
	defer a.Close()
	c.app = a

	switch cmd {
	case "ls":
		return c.ls(ctx, args)
	case "touch", "mkdir":
		return c.create(ctx, cmd, args)
	case "rm":
		return c.remove(ctx, cmd, args)
	case "trash":
		return c.trash(ctx, args)
	case "cp":
		return c.cp(ctx, args)
	case "jobs":
		return c.jobs(ctx, args)
	case "watch":
		return c.watch(ctx, args)
	}
	flag.Usage()
	return fmt.Errorf("unknown command %q", cmd)
}

func (c *cli) path(arg string) string {
	return nav.ExpandPath(arg, c.cwd, c.home)
}

func (c *cli) ls(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("ls", flag.ContinueOnError)
	all := flags.Bool("a", false, "show hidden entries")
	dirs := flags.Bool("d", false, "only directories")
	if err := flags.Parse(args); err != nil {
		return err
	}
	opts := c.app.ListOptions()
	opts.ShowHidden = opts.ShowHidden || *all
	opts.OnlyDirectories = opts.OnlyDirectories || *dirs

	dir := c.path(flags.Arg(0))
	s, err := c.app.OpenSession(dir, session.WithListOptions(opts))
	if err != nil {
		return err
	}
	defer s.Close()

	st, err := s.Await(ctx, session.Settled)
	if err != nil {
		return err
	}
	c.printState(st)
	return st.Err
}

func (c *cli) printState(st session.State) {
	if trail, err := nav.TrailTo(rootOf(st.Path), st.Path); err == nil {
		fmt.Fprintln(c.out, trail)
	} else {
		fmt.Fprintln(c.out, st.Path)
	}
	if st.Phase == session.Failed {
		fmt.Fprintf(c.out, "  (%s)\n", fs.KindOf(st.Err))
		return
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	for _, e := range st.Entries {
		if e.IsDir() {
			fmt.Fprintf(tw, "  %s/\t%d items\t%s\n", e.Name, e.ChildCount, humanize.Time(e.ModTime))
		} else {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", e.Name, humanize.Bytes(uint64(e.Size)), humanize.Time(e.ModTime))
		}
	}
	tw.Flush()
}

func rootOf(path string) string {
	return filepath.VolumeName(path) + string(filepath.Separator)
}

func (c *cli) create(ctx context.Context, cmd string, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: %s <dir> <name>", cmd)
	}
	var (
		e   fs.Entry
		err error
	)
	if cmd == "touch" {
		e, err = c.app.FS.CreateFile(ctx, c.path(args[0]), args[1])
	} else {
		e, err = c.app.FS.CreateFolder(ctx, c.path(args[0]), args[1])
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, e.Path)
	return nil
}

func (c *cli) remove(ctx context.Context, cmd string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s <path>", cmd)
	}
	_, err := c.app.FS.Delete(ctx, c.path(args[0]))
	return err
}

func (c *cli) trash(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("trash", flag.ContinueOnError)
	list := flags.Bool("l", false, "list trashed entries")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if !*list {
		if flags.NArg() != 1 {
			return errors.New("usage: trash <path> | trash -l")
		}
		_, err := c.app.FS.Trash(ctx, c.path(flags.Arg(0)))
		return err
	}

	items, err := trash.List()
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, trash.Dir())
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	for _, it := range items {
		size := humanize.Bytes(uint64(it.Size))
		if it.IsDir {
			size = "dir"
		}
		orig := it.OriginalPath
		if orig == "" {
			orig = it.Name
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", orig, size, humanize.Time(it.DeletedAt))
	}
	return tw.Flush()
}

func (c *cli) cp(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("cp", flag.ContinueOnError)
	bg := flags.Bool("bg", false, "queue as a background job")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 2 {
		return errors.New("usage: cp [-bg] <src> <destdir>")
	}
	src, dest := c.path(flags.Arg(0)), c.path(flags.Arg(1))

	if *bg {
		runner, err := c.app.Jobs()
		if err != nil {
			return err
		}
		j, err := runner.Enqueue(ctx, src, dest)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "queued %s\n", j.ID)
		return nil
	}

	done := make(chan struct{})
	go c.showProgress(done)
	e, err := c.app.FS.Copy(ctx, src, dest)
	close(done)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, e.Path)
	return nil
}

func (c *cli) showProgress(done <-chan struct{}) {
	last := time.Now()
	for {
		select {
		case <-done:
			return
		case p := <-c.app.FS.ProgressChan:
			if time.Since(last) < 500*time.Millisecond || p.Total == 0 {
				continue
			}
			last = time.Now()
			fmt.Fprintf(os.Stderr, "%s: %s / %s\n", p.Label,
				humanize.Bytes(uint64(p.Current)), humanize.Bytes(uint64(p.Total)))
		}
	}
}

func (c *cli) jobs(ctx context.Context, args []string) error {
	runner, err := c.app.Jobs()
	if err != nil {
		return err
	}
	sub := "list"
	if len(args) > 0 {
		sub = args[0]
	}

	switch sub {
	case "list":
		list, err := runner.Jobs(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
		for _, j := range list {
			detail := j.Result
			if j.Status == store.StatusFailed {
				detail = j.ErrKind + ": " + j.ErrMsg
			}
			fmt.Fprintf(tw, "%s\t%s\t%s -> %s\t%s\t%s\n", j.ID, j.Status, j.Source, j.Dest,
				humanize.Time(j.CreatedAt), detail)
		}
		return tw.Flush()
	case "run":
		n, err := runner.Drain(ctx)
		fmt.Fprintf(c.out, "%d jobs processed\n", n)
		return err
	}
	return fmt.Errorf("unknown jobs command %q", sub)
}

func (c *cli) jobFinished(j store.Job) {
	if j.Status == store.StatusDone {
		fmt.Fprintf(os.Stderr, "copy finished: %s\n", j.Result)
		return
	}
	fmt.Fprintf(os.Stderr, "copy of %s failed: %s\n", j.Source, j.ErrMsg)
}

// watch prints the listing after every change until interrupted. Queued
// copies are processed meanwhile.
func (c *cli) watch(ctx context.Context, args []string) error {
	dir := c.path("")
	if len(args) > 0 {
		dir = c.path(args[0])
	}
	s, err := c.app.OpenSession(dir)
	if err != nil {
		return err
	}
	defer s.Close()

	runErr := make(chan error, 1)
	go func() { runErr <- c.app.Run(ctx) }()

	var lastGen int64
	for {
		select {
		case <-ctx.Done():
			return <-runErr
		case err := <-runErr:
			return err
		case <-s.Updates():
			st := s.Snapshot()
			if session.Settled(st) && st.Gen != lastGen {
				lastGen = st.Gen
				fmt.Fprintf(c.out, "--- %s\n", time.Now().Format(time.TimeOnly))
				c.printState(st)
			}
		}
	}
}

func configCmd(mgr *config.Manager, args []string) error {
	if len(args) == 0 || args[0] == "path" {
		fmt.Println(mgr.Path())
		return nil
	}
	if args[0] == "reset" {
		backup, err := config.GenerateConfig(mgr.Path())
		if err != nil {
			return err
		}
		if backup != "" {
			fmt.Printf("previous config saved to %s\n", backup)
		}
		fmt.Printf("wrote defaults to %s\n", mgr.Path())
		return nil
	}
	return fmt.Errorf("unknown config command %q", args[0])
}
