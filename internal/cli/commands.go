package cli

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ab/release-server/internal/audit"
	"github.com/ab/release-server/internal/version"
)

// Use stores server as the default for later commands.
func Use(server string, w io.Writer) error {
	if err := validateServer(server); err != nil {
		return err
	}
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	cfg.Server = strings.TrimRight(server, "/")
	if err := SaveConfig(cfg); err != nil {
		return err
	}
	fmt.Fprintf(w, "Using %s\n", cfg.Server)
	return nil
}

// Check prints the published release and reports whether it is newer than
// current. An empty current only prints.
func Check(ctx context.Context, c *Client, current string, w io.Writer) (bool, error) {
	d, err := c.LatestVersion(ctx)
	if err != nil {
		return false, err
	}
	if d.LatestVersion == "" {
		fmt.Fprintln(w, "No release published")
		return false, nil
	}
	fmt.Fprintf(w, "Latest version: %s\n", d.LatestVersion)
	if d.Description != "" {
		fmt.Fprintf(w, "  %s\n", d.Description)
	}
	if current == "" {
		return false, nil
	}
	if CompareVersions(d.LatestVersion, current) <= 0 {
		fmt.Fprintf(w, "Up to date (%s)\n", current)
		return false, nil
	}
	fmt.Fprintf(w, "Update available: %s -> %s\n", current, d.LatestVersion)
	if d.DownloadURL != "" {
		fmt.Fprintf(w, "Download: %s\n", d.DownloadURL)
	}
	return true, nil
}

// CompareVersions orders dotted version strings. Numeric segments compare
// as numbers, others as strings, and missing segments count as 0. A leading
// "v" is ignored.
func CompareVersions(a, b string) int {
	as := strings.Split(strings.TrimPrefix(a, "v"), ".")
	bs := strings.Split(strings.TrimPrefix(b, "v"), ".")
	for i := 0; i < max(len(as), len(bs)); i++ {
		x, y := "0", "0"
		if i < len(as) && as[i] != "" {
			x = as[i]
		}
		if i < len(bs) && bs[i] != "" {
			y = bs[i]
		}
		xn, xerr := strconv.Atoi(x)
		yn, yerr := strconv.Atoi(y)
		if xerr == nil && yerr == nil {
			if c := cmp.Compare(xn, yn); c != 0 {
				return c
			}
			continue
		}
		if c := strings.Compare(x, y); c != 0 {
			return c
		}
	}
	return 0
}

// Fetch downloads name into dir.
func Fetch(ctx context.Context, c *Client, name, dir string, w io.Writer) error {
	if dir == "" {
		dir = "."
	}
	path, n, err := c.Download(ctx, name, dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Saved %s (%d bytes)\n", path, n)
	return nil
}

// Publish writes a new descriptor file in place.
func Publish(path string, d version.Descriptor, w io.Writer) error {
	if d.LatestVersion == "" {
		return fmt.Errorf("version is required")
	}
	if err := version.NewLoader(path).Save(d); err != nil {
		return err
	}
	fmt.Fprintf(w, "Published %s to %s\n", d.LatestVersion, path)
	return nil
}

// PrintAudit lists the most recent download attempts from the audit
// database at dbPath.
func PrintAudit(ctx context.Context, dbPath string, limit int, w io.Writer) error {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("audit database: %w", err)
	}
	d, err := audit.New(dbPath, nil)
	if err != nil {
		return err
	}
	defer d.Close()

	entries, err := d.Recent(ctx, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No downloads recorded")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tOUTCOME\tBYTES\tREMOTE\tNAME")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			e.CreatedAt.Local().Format(time.DateTime), e.Outcome, e.Bytes, e.RemoteAddr, e.Name)
	}
	return tw.Flush()
}
