package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/hupe1980/postings"
	"github.com/hupe1980/postings/codec"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "postingsctl",
		Usage: "maintain and query a checkpointed posting list index",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML config file",
				EnvVars: []string{"POSTINGS_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "local checkpoint directory, overrides the configured store",
			},
		},
		Commands: []*cli.Command{
			ingestCommand(),
			queryCommand(),
			inspectCommand(),
			verifyCommand(),
			statsCommand(),
			checkpointsCommand(),
		},
	}
}

// openIndex loads the configuration and opens the index, restoring the
// latest checkpoint.
func openIndex(c *cli.Context) (*postings.Index, error) {
	cfg, err := postings.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if dir := c.String("store"); dir != "" {
		cfg.Checkpoint.Store = postings.StoreConfig{Type: "local", Path: dir}
	}
	opts, err := cfg.Options(c.Context)
	if err != nil {
		return nil, err
	}
	return postings.Open(c.Context, opts...)
}

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "add postings from tab separated term, id and optional frequency lines",
		ArgsUsage: "[file|-]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "batch", Value: 100_000, Usage: "lines per commit"},
			&cli.BoolFlag{Name: "remove", Usage: "remove the listed postings instead"},
			&cli.BoolFlag{Name: "no-checkpoint", Usage: "skip the checkpoint after ingest"},
		},
		Action: func(c *cli.Context) error {
			in := io.Reader(os.Stdin)
			if name := c.Args().First(); name != "" && name != "-" {
				f, err := os.Open(name)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			idx, err := openIndex(c)
			if err != nil {
				return err
			}
			defer idx.Close()

			n, err := ingest(c, idx, in, c.Int("batch"), c.Bool("remove"))
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "ingested %d postings\n", n)

			if c.Bool("no-checkpoint") {
				return nil
			}
			info, err := idx.Checkpoint(c.Context)
			if errors.Is(err, postings.ErrNoBlobStore) {
				fmt.Fprintln(c.App.Writer, "no blob store configured, nothing persisted")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "checkpoint %s (%d bytes)\n", info.Name, info.Size)
			return nil
		},
	}
}

func ingest(c *cli.Context, idx *postings.Index, in io.Reader, batch int, remove bool) (int, error) {
	if batch <= 0 {
		batch = 1
	}
	w, err := idx.Writer(c.Context)
	if err != nil {
		return 0, err
	}
	defer func() {
		if w != nil {
			w.Rollback()
		}
	}()

	sc := bufio.NewScanner(in)
	total, pending, line := 0, 0, 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		term, id, freq, err := parseLine(text)
		if err != nil {
			return total, fmt.Errorf("line %d: %w", line, err)
		}
		if remove {
			err = w.Remove(term, id)
		} else {
			err = w.Add(term, id, freq)
		}
		if err != nil {
			return total, fmt.Errorf("line %d: %w", line, err)
		}
		total++
		if pending++; pending == batch {
			if err := w.Commit(c.Context); err != nil {
				w = nil
				return total, err
			}
			if w, err = idx.Writer(c.Context); err != nil {
				return total, err
			}
			pending = 0
		}
	}
	if err := sc.Err(); err != nil {
		return total, err
	}
	err = w.Commit(c.Context)
	w = nil
	return total, err
}

func parseLine(text string) (term string, id int64, freq int, err error) {
	fields := strings.Split(text, "\t")
	if len(fields) < 2 || len(fields) > 3 {
		return "", 0, 0, fmt.Errorf("want term<TAB>id[<TAB>frequency], got %q", text)
	}
	if id, err = strconv.ParseInt(fields[1], 10, 64); err != nil {
		return "", 0, 0, fmt.Errorf("id: %w", err)
	}
	freq = 1
	if len(fields) == 3 {
		if freq, err = strconv.Atoi(fields[2]); err != nil {
			return "", 0, 0, fmt.Errorf("frequency: %w", err)
		}
	}
	return fields[0], id, freq, nil
}

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:      "query",
		Usage:     "print the documents containing every term",
		ArgsUsage: "term...",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "k", Usage: "rank with BM25 and print the k best"},
			&cli.BoolFlag{Name: "json", Usage: "print JSON"},
		},
		Action: func(c *cli.Context) error {
			terms := c.Args().Slice()
			if len(terms) == 0 {
				return cli.ShowCommandHelp(c, "query")
			}
			idx, err := openIndex(c)
			if err != nil {
				return err
			}
			defer idx.Close()
			s, err := idx.Searcher()
			if err != nil {
				return err
			}

			if k := c.Int("k"); k > 0 {
				hits, err := s.Search(c.Context, terms, k)
				if err != nil {
					return err
				}
				if c.Bool("json") {
					return printJSON(c.App.Writer, hits)
				}
				for _, h := range hits {
					fmt.Fprintf(c.App.Writer, "%d\t%.4f\n", h.ID, h.Score)
				}
				return nil
			}

			ids, err := s.And(c.Context, terms...)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				if ids == nil {
					ids = []int64{}
				}
				return printJSON(c.App.Writer, ids)
			}
			for _, id := range ids {
				fmt.Fprintln(c.App.Writer, id)
			}
			return nil
		},
	}
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "explain how a conjunction of terms is evaluated",
		ArgsUsage: "term...",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print JSON"},
		},
		Action: func(c *cli.Context) error {
			terms := c.Args().Slice()
			if len(terms) == 0 {
				return cli.ShowCommandHelp(c, "inspect")
			}
			idx, err := openIndex(c)
			if err != nil {
				return err
			}
			defer idx.Close()
			s, err := idx.Searcher()
			if err != nil {
				return err
			}
			node, err := s.Inspect(terms...)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(c.App.Writer, node)
			}
			fmt.Fprint(c.App.Writer, node.String())
			return nil
		},
	}
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "check the stored postings of the given or all terms",
		ArgsUsage: "[term...]",
		Action: func(c *cli.Context) error {
			idx, err := openIndex(c)
			if err != nil {
				return err
			}
			defer idx.Close()
			s, err := idx.Searcher()
			if err != nil {
				return err
			}

			terms := c.Args().Slice()
			if len(terms) == 0 {
				terms = s.Terms()
			}
			var errs []error
			for _, term := range terms {
				if err := s.Verify(term); err != nil {
					errs = append(errs, err)
				}
			}
			if err := errors.Join(errs...); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "verified %d terms\n", len(terms))
			return nil
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "print index statistics",
		Action: func(c *cli.Context) error {
			idx, err := openIndex(c)
			if err != nil {
				return err
			}
			defer idx.Close()
			return printJSON(c.App.Writer, idx.Stats())
		},
	}
}

func checkpointsCommand() *cli.Command {
	return &cli.Command{
		Name:  "checkpoints",
		Usage: "list stored checkpoints",
		Action: func(c *cli.Context) error {
			idx, err := openIndex(c)
			if err != nil {
				return err
			}
			defer idx.Close()
			list, err := idx.Checkpoints(c.Context)
			if err != nil {
				return err
			}
			for _, info := range list {
				fmt.Fprintf(c.App.Writer, "%s\t%d\t%d\n", info.Name, info.Size, info.RawSize)
			}
			return nil
		},
	}
}

func printJSON(w io.Writer, v any) error {
	data, err := codec.Default.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
