// Command dropctl uploads and manages files in a dropzone namespace from the
// command line, talking to object storage directly.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/radif/dropzone/internal/cache"
	"github.com/radif/dropzone/internal/config"
	"github.com/radif/dropzone/internal/db"
	"github.com/radif/dropzone/internal/gateway"
	"github.com/radif/dropzone/internal/logger"
	"github.com/radif/dropzone/internal/records"
	"github.com/radif/dropzone/internal/storage"
)

type ctxKey struct{}

// env is shared by every command.
type env struct {
	cfg     *config.Config
	gw      *gateway.Service
	closeFn func()
	out     io.Writer
}

func fromContext(c *cli.Context) *env {
	return c.Context.Value(ctxKey{}).(*env)
}

func setup(c *cli.Context) error {
	cfg := config.Load()
	logger.Setup(cfg.AppEnv, c.String("log-level"))
	if d := c.String("driver"); d != "" {
		cfg.StorageDriver = d
	}

	store, err := storage.Open(c.Context, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	e := &env{cfg: cfg, closeFn: func() {}, out: c.App.Writer}

	var repo records.Repository
	if cfg.DatabaseURL != "" {
		pool, err := db.Open(c.Context, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		repo = records.NewPostgresRepository(pool)
		e.closeFn = pool.Close
	}

	e.gw = gateway.NewService(store, repo, cache.NewNoop(), gateway.Options{
		MaxSize:     cfg.UploadMaxSize,
		Concurrency: cfg.UploadConcurrency,
	})
	c.Context = context.WithValue(c.Context, ctxKey{}, e)
	return nil
}

func teardown(c *cli.Context) error {
	if e, ok := c.Context.Value(ctxKey{}).(*env); ok {
		e.closeFn()
	}
	return nil
}

func namespace(c *cli.Context) string {
	if ns := c.String("namespace"); ns != "" {
		return ns
	}
	return fromContext(c).cfg.StorageNamespace
}

func folder(c *cli.Context) string {
	if f := c.String("folder"); f != "" {
		return f
	}
	return fromContext(c).cfg.StorageFolder
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "dropctl",
		Usage: "Upload and manage files in object storage namespaces",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "namespace",
				Aliases: []string{"n"},
				Usage:   "Namespace (bucket) to operate on",
				EnvVars: []string{"STORAGE_NAMESPACE"},
			},
			&cli.StringFlag{
				Name:    "folder",
				Aliases: []string{"f"},
				Usage:   "Folder inside the namespace",
				EnvVars: []string{"STORAGE_FOLDER"},
			},
			&cli.StringFlag{
				Name:  "driver",
				Usage: "Storage driver override: minio, s3 or memory",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level",
				Value:   "warn",
				EnvVars: []string{"DROPCTL_LOG_LEVEL"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Create the namespace if it does not exist",
				Before: setup,
				After:  teardown,
				Action: runInit,
			},
			{
				Name:      "upload",
				Usage:     "Upload files with progress",
				ArgsUsage: "FILE...",
				Before:    setup,
				After:     teardown,
				Action:    runUpload,
			},
			{
				Name:   "ls",
				Usage:  "List objects in the folder",
				Before: setup,
				After:  teardown,
				Action: runList,
			},
			{
				Name:      "rm",
				Usage:     "Remove an object",
				ArgsUsage: "PATH",
				Before:    setup,
				After:     teardown,
				Action:    runRemove,
			},
			{
				Name:   "records",
				Usage:  "Show files uploaded into the namespace",
				Before: setup,
				After:  teardown,
				Action: runRecords,
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
