package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/urfave/cli"

	"github.com/warpdl/queuedl/cmd/common"
	"github.com/warpdl/queuedl/pkg/qdcli"
	"github.com/warpdl/queuedl/pkg/queuelib"
)

var lsFlags = []cli.Flag{
	cli.StringSliceFlag{
		Name:  "status, s",
		Usage: "only list downloads in this status, repeatable",
	},
}

func list(ctx *cli.Context) error {
	if ctx.Args().First() == "help" {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	var statuses []queuelib.Status
	for _, s := range ctx.StringSlice("status") {
		statuses = append(statuses, queuelib.Status(strings.ToLower(strings.TrimSpace(s))))
	}
	return withClient("list", func(c context.Context, client *qdcli.Client) error {
		l, err := client.List(c, statuses...)
		if err != nil {
			return err
		}
		fmt.Print(renderList(l.Downloads))
		state := "running"
		if l.Paused {
			state = "paused"
		}
		fmt.Printf("Queue %s: %d active, %d waiting\n", state, l.Active, l.Queued)
		return nil
	})
}

func renderList(items []*queuelib.Snapshot) string {
	if len(items) == 0 {
		return "queuedl: no downloads found\n"
	}
	var b strings.Builder
	b.WriteString("------------------------------------------------------------------------------\n")
	b.WriteString("|Num|         Name         |   File ref   |   Status    |  Done  |    Speed   |\n")
	b.WriteString("|---|----------------------|--------------|-------------|--------|------------|\n")
	for i, s := range items {
		fmt.Fprintf(&b, "|%s|%s|%s|%s|%s|%s|\n",
			common.Beaut(fmt.Sprint(i+1), 3),
			common.Beaut(s.DisplayName, 22),
			common.Beaut(s.FileRef, 14),
			common.Beaut(string(s.Status), 13),
			common.Beaut(fmt.Sprintf("%.0f%%", s.Progress), 8),
			common.Beaut(common.FormatSpeed(s.Speed), 12),
		)
	}
	b.WriteString("------------------------------------------------------------------------------\n")
	return b.String()
}

func status(ctx *cli.Context) error {
	ref := ctx.Args().First()
	if ref == "" {
		return fmt.Errorf("status: %w", errMissingArg)
	}
	return withClient("status", func(c context.Context, client *qdcli.Client) error {
		s, err := client.Get(c, ref)
		if err != nil {
			return fmt.Errorf("%s: %s", ref, describeErr(err))
		}
		fmt.Print(renderSnapshot(s))
		return nil
	})
}

func renderSnapshot(s *queuelib.Snapshot) string {
	var b strings.Builder
	row := func(k, v string) {
		fmt.Fprintf(&b, "%-12s %s\n", k+":", v)
	}
	row("File ref", s.FileRef)
	row("Name", s.DisplayName)
	row("Target", s.TargetPath)
	row("Status", string(s.Status))
	row("Progress", fmt.Sprintf("%.1f%% of %s", s.Progress, common.FormatSize(s.TotalBytes)))
	row("Downloaded", common.FormatSize(s.DownloadedBytes))
	row("Speed", common.FormatSpeed(s.Speed))
	row("Retries", fmt.Sprint(s.RetryCount))
	if s.ErrorMessage != "" {
		row("Error", s.ErrorMessage)
	}
	row("Created", s.CreatedAt.Format("2006-01-02 15:04:05"))
	if s.StartedAt != nil {
		row("Started", s.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if s.CompletedAt != nil {
		row("Finished", s.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	keys := make([]string, 0, len(s.Metadata))
	for k := range s.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		row("meta."+k, s.Metadata[k])
	}
	return b.String()
}

func info(ctx *cli.Context) error {
	ref := ctx.Args().First()
	if ref == "" {
		return fmt.Errorf("info: %w", errMissingArg)
	}
	return withClient("info", func(c context.Context, client *qdcli.Client) error {
		fi, err := client.Info(c, ref)
		if err != nil {
			return fmt.Errorf("%s: %s", ref, describeErr(err))
		}
		txt := fmt.Sprintf("File Info\nName: %s\nSize: %s\n", fi.Name, common.FormatSize(fi.Size))
		if fi.UniqueID != "" {
			txt += fmt.Sprintf("Unique ID: %s\n", fi.UniqueID)
		}
		if fi.RemotePath != "" {
			txt += fmt.Sprintf("Remote path: %s\n", fi.RemotePath)
		}
		fmt.Print(txt)
		return nil
	})
}
