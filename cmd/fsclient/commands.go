package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"filevault-client/apiclient"
	"filevault-client/debounce"
	"filevault-client/governor"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

func newListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List your files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(rt *runtime) error {
				files, err := rt.client.ListFiles(cmd.Context())
				if err != nil {
					return err
				}
				return printFiles(cmd.OutOrStdout(), opts.Format, files)
			})
		},
	}
}

func newSearchCommand(opts *rootOptions) *cobra.Command {
	var (
		interactive bool
		wait        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "search [term]",
		Short: "Search files by name, tag, date, size or type",
		Long: `Search matches the term, case-insensitively, against file name,
tags, upload date (YYYY-MM-DD), size in bytes and MIME type.

With -i, terms are read from stdin one per line; only the last line
of a burst typed within --debounce is sent.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if interactive {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.MaximumNArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(rt *runtime) error {
				if !interactive {
					var term string
					if len(args) == 1 {
						term = args[0]
					}
					files, err := rt.client.SearchFiles(cmd.Context(), term)
					if err != nil {
						return err
					}
					return printFiles(cmd.OutOrStdout(), opts.Format, files)
				}
				return interactiveSearch(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), rt.client, opts.Format, wait)
			})
		},
	}
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "read search terms from stdin")
	cmd.Flags().DurationVar(&wait, "debounce", 300*time.Millisecond, "quiet period before a typed term is searched")
	return cmd
}

// interactiveSearch lê termos de in e busca apenas o último de cada rajada.
func interactiveSearch(ctx context.Context, in io.Reader, out io.Writer, c *apiclient.Client, format string, wait time.Duration) error {
	var mu sync.Mutex
	search := func(term string) {
		files, err := c.SearchFiles(ctx, term)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			fmt.Fprintf(out, "search %q: %v\n", term, err)
			return
		}
		if format == "text" {
			fmt.Fprintf(out, "# %q: %d match(es)\n", term, len(files))
		}
		if err := printFiles(out, format, files); err != nil {
			klog.FromContext(ctx).Error(err, "print results")
		}
	}

	d := debounce.New(wait, search)
	defer d.Stop()

	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		d.Call(sc.Text())
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	// fim da entrada: o último termo não precisa esperar a janela.
	d.Flush()
	return nil
}

func newUploadCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "upload FILE...",
		Short: "Upload one or more files",
		Long: `Upload submits every file to the governor at once; they are sent
in argument order, one at a time, each followed by the upload cooldown.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(rt *runtime) error {
				ctx := cmd.Context()
				futures := make([]*governor.Future[*apiclient.Response], len(args))
				errs := make([]error, len(args))
				for i, path := range args {
					futures[i], errs[i] = submitUpload(ctx, rt.client, path)
				}

				failed := 0
				out := cmd.OutOrStdout()
				for i, path := range args {
					if errs[i] == nil {
						_, errs[i] = futures[i].Wait(ctx)
					}
					if errs[i] != nil {
						failed++
						fmt.Fprintf(out, "FAIL %s: %v\n", path, errs[i])
						continue
					}
					fmt.Fprintf(out, "ok   %s\n", path)
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d upload(s) failed", failed, len(args))
				}
				return nil
			})
		},
	}
}

func submitUpload(ctx context.Context, c *apiclient.Client, path string) (*governor.Future[*apiclient.Response], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return c.SubmitUpload(ctx, "/files", filepath.Base(path), f, nil)
}

func newRemoveCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm ID...",
		Short: "Delete files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			return withRuntime(cmd, opts, func(rt *runtime) error {
				for _, id := range ids {
					if err := rt.client.DeleteFile(cmd.Context(), id); err != nil {
						return fmt.Errorf("delete %d: %w", id, err)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", id)
				}
				return nil
			})
		},
	}
}

func newTagCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Manage file tags",
	}

	tagRun := func(add bool) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[:1])
			if err != nil {
				return err
			}
			return withRuntime(cmd, opts, func(rt *runtime) error {
				for _, tag := range args[1:] {
					if add {
						err = rt.client.AddTag(cmd.Context(), ids[0], tag)
					} else {
						err = rt.client.RemoveTag(cmd.Context(), ids[0], tag)
					}
					if err != nil {
						return fmt.Errorf("tag %q: %w", tag, err)
					}
				}
				return nil
			})
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add ID TAG...",
		Short: "Add tags to a file",
		Args:  cobra.MinimumNArgs(2),
		RunE:  tagRun(true),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rm ID TAG...",
		Short: "Remove tags from a file",
		Args:  cobra.MinimumNArgs(2),
		RunE:  tagRun(false),
	})
	return cmd
}

func newStatsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show storage usage and deduplication savings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(rt *runtime) error {
				st, err := rt.client.Stats(cmd.Context())
				if err != nil {
					return err
				}
				return printStats(cmd.OutOrStdout(), opts.Format, st)
			})
		},
	}
}

func newLoginCommand(opts *rootOptions) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print a bearer token",
		Long:  "Login prints the token; export it as FSCLIENT_TOKEN for later commands.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("FSCLIENT_PASSWORD")
			}
			return withRuntime(cmd, opts, func(rt *runtime) error {
				tok, err := rt.client.Login(cmd.Context(), email, password)
				if err != nil {
					return err
				}
				if opts.Format == "json" {
					return writeJSON(cmd.OutOrStdout(), map[string]string{"token": tok})
				}
				fmt.Fprintln(cmd.OutOrStdout(), tok)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (env FSCLIENT_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid file id %q", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
