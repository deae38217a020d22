package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli"

	"github.com/warpdl/queuedl/common"
	"github.com/warpdl/queuedl/pkg/qdcli"
	"github.com/warpdl/queuedl/pkg/queuelib"
)

var (
	addName      string
	addDir       string
	addChatID    string
	addMessageID string

	addFlags = []cli.Flag{
		cli.StringFlag{
			Name:        "name, n",
			Usage:       "file name to save as (default: derived from the file reference)",
			Destination: &addName,
		},
		cli.StringFlag{
			Name:        "dir, d",
			Usage:       "directory to save into (default: the daemon's download path)",
			Destination: &addDir,
		},
		cli.StringFlag{
			Name:        "chat-id",
			Usage:       "originating chat, stored as metadata",
			Destination: &addChatID,
		},
		cli.StringFlag{
			Name:        "message-id",
			Usage:       "originating message, stored as metadata",
			Destination: &addMessageID,
		},
		cli.StringSliceFlag{
			Name:  "meta, m",
			Usage: "extra metadata as key=value, repeatable",
		},
	}
)

func add(ctx *cli.Context) error {
	refs := ctx.Args()
	if len(refs) == 0 {
		return fmt.Errorf("add: %w", errMissingArg)
	}
	if addName != "" && len(refs) > 1 {
		return fmt.Errorf("add: --name needs exactly one file reference")
	}
	meta, err := parseMeta(ctx.StringSlice("meta"))
	if err != nil {
		return fmt.Errorf("add: %w", err)
	}
	if addChatID != "" {
		meta[common.MetaChatID] = addChatID
	}
	if addMessageID != "" {
		meta[common.MetaMessageID] = addMessageID
	}
	if len(meta) == 0 {
		meta = nil
	}
	return withClient("add", func(c context.Context, client *qdcli.Client) error {
		for _, ref := range refs {
			res, err := client.Add(c, &common.AddParams{
				FileRef:     ref,
				DisplayName: addName,
				Dir:         addDir,
				Metadata:    meta,
			})
			if err != nil {
				return fmt.Errorf("%s: %s", ref, describeErr(err))
			}
			fmt.Printf("Queued %s (id %d)\n", res.FileRef, res.ID)
		}
		return nil
	})
}

func parseMeta(pairs []string) (queuelib.Metadata, error) {
	meta := make(queuelib.Metadata, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid metadata %q, want key=value", p)
		}
		meta[k] = v
	}
	return meta, nil
}

func pause(ctx *cli.Context) error {
	return withClient("pause", func(c context.Context, client *qdcli.Client) error {
		if _, err := client.Pause(c); err != nil {
			return err
		}
		fmt.Println("Queue paused")
		return nil
	})
}

func resume(ctx *cli.Context) error {
	return withClient("resume", func(c context.Context, client *qdcli.Client) error {
		if _, err := client.Resume(c); err != nil {
			return err
		}
		fmt.Println("Queue resumed")
		return nil
	})
}

func cancel(ctx *cli.Context) error {
	return forEachRef(ctx, "cancel", "cancelled", func(c context.Context, client *qdcli.Client, ref string) error {
		return client.Cancel(c, ref)
	})
}

func retry(ctx *cli.Context) error {
	return forEachRef(ctx, "retry", "queued again", func(c context.Context, client *qdcli.Client, ref string) error {
		return client.Retry(c, ref)
	})
}

func remove(ctx *cli.Context) error {
	return forEachRef(ctx, "remove", "removed", func(c context.Context, client *qdcli.Client, ref string) error {
		return client.Remove(c, ref)
	})
}

func clearFinished(ctx *cli.Context) error {
	return withClient("clear", func(c context.Context, client *qdcli.Client) error {
		n, err := client.Clear(c)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d finished downloads\n", n)
		return nil
	})
}
