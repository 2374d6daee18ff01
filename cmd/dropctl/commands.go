package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/radif/dropzone/internal/queue"
)

func runInit(c *cli.Context) error {
	e := fromContext(c)
	st, err := e.gw.EnsureNamespace(c.Context, namespace(c))
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "namespace %s is %s\n", st.Name, st.State)
	return nil
}

func runUpload(c *cli.Context) error {
	e := fromContext(c)
	if c.NArg() == 0 {
		return cli.Exit("upload: at least one FILE is required", 2)
	}

	files := make([]queue.File, 0, c.NArg())
	for _, p := range c.Args().Slice() {
		f, err := localFile(p)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	ns := namespace(c)
	if _, err := e.gw.EnsureNamespace(c.Context, ns); err != nil {
		return err
	}

	limits := queue.Limits{MaxFiles: e.cfg.UploadMaxFiles, MaxSize: e.cfg.UploadMaxSize}
	progress := newProgressPrinter(e.out)
	mgr := queue.NewManager(limits,
		queue.WithTracker(e.gw.Tracker(ns, folder(c))),
		queue.OnChange(progress.print),
	)
	defer mgr.Close()

	res, err := mgr.Add(files)
	if err != nil {
		return err
	}
	for _, rj := range res.Rejected {
		fmt.Fprintf(e.out, "skipped %s: %s\n", rj.Name, rj.Message())
	}
	mgr.Wait()

	failed := 0
	for _, entry := range mgr.Entries() {
		switch entry.Status {
		case queue.StatusSuccess:
			fmt.Fprintf(e.out, "uploaded %s -> %s\n", entry.Name, entry.Location)
		default:
			failed++
			fmt.Fprintf(e.out, "failed %s: %s\n", entry.Name, entry.Error)
		}
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d uploads failed", failed, len(res.Accepted)), 1)
	}
	return nil
}

func localFile(p string) (queue.File, error) {
	info, err := os.Stat(p)
	if err != nil {
		return queue.File{}, err
	}
	if info.IsDir() {
		return queue.File{}, fmt.Errorf("%s is a directory", p)
	}
	return queue.File{
		Name: filepath.Base(p),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(p) },
	}, nil
}

// progressPrinter prints a line whenever an entry moves by at least step
// percent or reaches a terminal state.
type progressPrinter struct {
	w    io.Writer
	step int

	mu   sync.Mutex
	last map[string]int
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, step: 10, last: make(map[string]int)}
}

func (p *progressPrinter) print(entries []queue.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range entries {
		last, seen := p.last[e.ID]
		if e.Status.Terminal() || e.Progress == 0 {
			continue
		}
		if seen && e.Progress-last < p.step {
			continue
		}
		p.last[e.ID] = e.Progress
		fmt.Fprintf(p.w, "%-32s %3d%%\n", e.Name, e.Progress)
	}
}

func runList(c *cli.Context) error {
	e := fromContext(c)
	objs, err := e.gw.List(c.Context, namespace(c), folder(c))
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSIZE\tMODIFIED")
	for _, o := range objs {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", o.Key, o.Size, o.LastModified.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

func runRemove(c *cli.Context) error {
	e := fromContext(c)
	if c.NArg() != 1 {
		return cli.Exit("rm: exactly one PATH is required", 2)
	}
	if err := e.gw.Remove(c.Context, namespace(c), c.Args().First()); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "removed %s\n", c.Args().First())
	return nil
}

func runRecords(c *cli.Context) error {
	e := fromContext(c)
	recs, err := e.gw.Records(c.Context, namespace(c))
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tURL")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", r.Name, r.Size, r.URL)
	}
	return tw.Flush()
}
