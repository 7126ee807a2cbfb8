// Package diagnostics collects what is needed to debug a failed firewall
// registration into a single plain text report.
package diagnostics

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/host"
	"gopkg.in/yaml.v2"
	"gorm.io/gorm"

	"github.com/priyxstudio/fwauth/config"
	"github.com/priyxstudio/fwauth/firewall"
	"github.com/priyxstudio/fwauth/internal/history"
	"github.com/priyxstudio/fwauth/system"
)

const DefaultLogLines = 200

type Options struct {
	IncludeLogs  bool
	LogLines     int
	HistoryLimit int
}

// Generate builds the report. Sections that cannot be collected contain the
// error instead so a partial report is still useful. db may be nil when the
// local database is unavailable.
func Generate(ctx context.Context, c *config.Configuration, service firewall.Service, db *gorm.DB, opts Options) string {
	var b strings.Builder

	section(&b, "Versions")
	fmt.Fprintf(&b, "%s:\t%s\n", system.ShortName, system.Version)
	if info, err := system.GetSystemInformation(); err != nil {
		fmt.Fprintf(&b, "system:\terror: %s\n", err)
	} else {
		fmt.Fprintf(&b, "os:\t\t%s (%s/%s)\n", info.OS, info.OSType, info.Architecture)
		fmt.Fprintf(&b, "kernel:\t\t%s\n", info.KernelVersion)
		fmt.Fprintf(&b, "elevated:\t%t\n", info.Elevated)
	}
	if hi, err := host.InfoWithContext(ctx); err != nil {
		fmt.Fprintf(&b, "host:\t\terror: %s\n", err)
	} else {
		fmt.Fprintf(&b, "hostname:\t%s\n", hi.Hostname)
		fmt.Fprintf(&b, "platform:\t%s %s\n", hi.Platform, hi.PlatformVersion)
		fmt.Fprintf(&b, "booted:\t\t%s\n", humanize.Time(time.Unix(int64(hi.BootTime), 0)))
	}

	section(&b, "Configuration")
	fmt.Fprintf(&b, "# %s\n", c.Path())
	if out, err := yaml.Marshal(c); err != nil {
		fmt.Fprintf(&b, "error: %s\n", err)
	} else {
		b.Write(out)
	}

	section(&b, "Firewall")
	fmt.Fprintf(&b, "backend:\t%s\n", service.Name())
	fmt.Fprintf(&b, "rule:\t\t%s\n", c.RuleName())
	if p, err := c.ApplicationPath(); err != nil {
		fmt.Fprintf(&b, "executable:\terror: %s\n", err)
	} else {
		fmt.Fprintf(&b, "executable:\t%s\n", p)
	}
	if ok, err := firewall.Exists(ctx, service, c.RuleName()); err != nil {
		op, code := firewall.StatusOf(err)
		fmt.Fprintf(&b, "registered:\tunknown (%s %s: %s)\n", op, firewall.FormatCode(code), err)
	} else {
		fmt.Fprintf(&b, "registered:\t%t\n", ok)
	}

	section(&b, "History")
	writeHistory(&b, db, opts.HistoryLimit)

	if opts.IncludeLogs {
		section(&b, "Logs")
		p := filepath.Join(c.System.LogDirectory, "fwauth.log")
		lines, err := tail(p, opts.LogLines)
		if err != nil {
			fmt.Fprintf(&b, "error: %s\n", err)
		}
		for _, l := range lines {
			b.WriteString(l)
			b.WriteByte('\n')
		}
	}

	return b.String()
}

func section(b *strings.Builder, title string) {
	fmt.Fprintf(b, "\n|\n| %s\n| ------------------------------\n", title)
}

func writeHistory(b *strings.Builder, db *gorm.DB, limit int) {
	if db == nil {
		b.WriteString("local database unavailable\n")
		return
	}
	records, err := history.NewRecorder(db, 0).Recent(limit)
	if err != nil {
		fmt.Fprintf(b, "error: %s\n", err)
		return
	}
	if len(records) == 0 {
		b.WriteString("no authorization attempts recorded\n")
		return
	}
	for _, r := range records {
		status := "ok"
		if !r.Success {
			status = fmt.Sprintf("failed at %s %s: %s", r.Step, r.Code, r.Error)
		}
		fmt.Fprintf(b, "%s\t%s\t%s\t%s\t%s\n", r.StartedAt.Format(time.RFC3339), r.Backend, r.RuleName, r.Stage, status)
	}
}

// tail returns the last n lines of the file at p.
func tail(p string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	lines := make([]string, 0, n)
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	for s.Scan() {
		if len(lines) == n {
			lines = append(lines[:0], lines[1:]...)
		}
		lines = append(lines, s.Text())
	}
	return lines, s.Err()
}
