package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/ab/release-server/internal/cli"
	"github.com/ab/release-server/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch os.Args[1] {
	case "use":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: releasectl use <server-url>")
			os.Exit(1)
		}
		err = cli.Use(os.Args[2], os.Stdout)
	case "check":
		fs := flag.NewFlagSet("check", flag.ExitOnError)
		server := fs.String("server", "", "server URL including the context path")
		current := fs.String("current", "", "installed version to compare against")
		fs.Parse(os.Args[2:])
		var c *cli.Client
		if c, err = cli.NewClient(*server); err == nil {
			_, err = cli.Check(ctx, c, *current, os.Stdout)
		}
	case "fetch":
		fs := flag.NewFlagSet("fetch", flag.ExitOnError)
		server := fs.String("server", "", "server URL including the context path")
		out := fs.String("out", ".", "output directory")
		names, _ := parseInterspersed(fs, os.Args[2:])
		if len(names) != 1 {
			fmt.Fprintln(os.Stderr, "Usage: releasectl fetch <filename> [--out DIR] [--server URL]")
			os.Exit(1)
		}
		var c *cli.Client
		if c, err = cli.NewClient(*server); err == nil {
			err = cli.Fetch(ctx, c, names[0], *out, os.Stdout)
		}
	case "publish":
		fs := flag.NewFlagSet("publish", flag.ExitOnError)
		path := fs.String("descriptor", "jt808.json", "descriptor file to write")
		v := fs.String("version", "", "release version")
		desc := fs.String("description", "", "release notes")
		url := fs.String("url", "", "download URL for the release")
		fs.Parse(os.Args[2:])
		err = cli.Publish(*path, version.Descriptor{
			LatestVersion: *v,
			Description:   *desc,
			DownloadURL:   *url,
		}, os.Stdout)
	case "audit":
		fs := flag.NewFlagSet("audit", flag.ExitOnError)
		db := fs.String("db", "audit.db", "download audit database")
		limit := fs.Int("limit", 20, "number of entries to show")
		fs.Parse(os.Args[2:])
		err = cli.PrintAudit(ctx, *db, *limit, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: releasectl <command> [options]

Commands:
  use      <server-url>                                   Set the default server
  check    [--current VERSION] [--server URL]             Show the published release
  fetch    <filename> [--out DIR] [--server URL]          Download a release file
  publish  --version V [--description D] [--url U] [--descriptor FILE]
                                                          Write the version descriptor
  audit    [--db FILE] [--limit N]                        List recent downloads`)
}

// parseInterspersed parses flags wherever they appear among the positional
// arguments and returns the positionals in order. Everything after "--" is
// positional.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var pos []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if n := len(args) - len(rest); n > 0 && args[n-1] == "--" {
			return append(pos, rest...), nil
		}
		if len(rest) == 0 {
			return pos, nil
		}
		pos = append(pos, rest[0])
		args = rest[1:]
	}
}
