package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli"
	"github.com/vbauerster/mpb/v8"

	cmdcommon "github.com/warpdl/queuedl/cmd/common"
	"github.com/warpdl/queuedl/common"
	"github.com/warpdl/queuedl/pkg/qdcli"
	"github.com/warpdl/queuedl/pkg/queuelib"
)

var (
	watchPlain bool

	watchFlags = []cli.Flag{
		cli.BoolFlag{
			Name:        "plain, p",
			Usage:       "print one line per event instead of progress bars",
			Destination: &watchPlain,
		},
	}
)

func watch(ctx *cli.Context) error {
	client, err := newClient()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	defer client.Close()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var v *barView
	var out io.Writer = os.Stdout
	if !watchPlain {
		p := mpb.NewWithContext(sigCtx)
		v = newBarView(p)
		out = p
		defer p.Shutdown()
	}
	fmt.Fprintf(out, "Watching %s, press Ctrl+C to stop\n", client.URL())
	return client.Watch(sigCtx, qdcli.Watcher{
		OnEvent: func(ev *common.EventNotification) {
			fmt.Fprintln(out, formatEvent(ev))
			if v != nil {
				v.event(ev)
			}
		},
		OnProgress: func(p *common.ProgressNotification) {
			if v != nil {
				v.progress(p)
				return
			}
			fmt.Fprintf(out, "%s %5.1f%% %s of %s at %s\n", p.FileRef, p.Percent,
				cmdcommon.FormatSize(p.Downloaded), cmdcommon.FormatSize(p.Total),
				cmdcommon.FormatSpeed(p.Speed))
		},
		OnError: func(method string, err error) {
			fmt.Fprintf(os.Stderr, "watch: bad %s push: %v\n", method, err)
		},
	})
}

func formatEvent(ev *common.EventNotification) string {
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	line := fmt.Sprintf("[%s] %s", ts.Format("15:04:05"), ev.Event)
	if ev.Job != nil {
		line += fmt.Sprintf(" %s (%s)", ev.Job.FileRef, ev.Job.DisplayName)
	}
	if ev.Error != "" {
		line += ": " + ev.Error
	}
	return line
}

// barView keeps one progress bar per running download.
type barView struct {
	mu   sync.Mutex
	p    *mpb.Progress
	bars map[string]*trackedBar
}

type trackedBar struct {
	bar  *mpb.Bar
	last time.Time
}

func newBarView(p *mpb.Progress) *barView {
	return &barView{p: p, bars: make(map[string]*trackedBar)}
}

func (v *barView) get(ref, name string, total int64) *trackedBar {
	tb, ok := v.bars[ref]
	if !ok {
		if name == "" {
			name = ref
		}
		tb = &trackedBar{bar: cmdcommon.InitBar(v.p, name, total), last: time.Now()}
		v.bars[ref] = tb
	}
	return tb
}

func (v *barView) event(ev *common.EventNotification) {
	if ev.Job == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	ref := ev.Job.FileRef
	switch ev.Event {
	case queuelib.EventDownloadStarted:
		v.get(ref, ev.Job.DisplayName, ev.Job.TotalBytes)
	case queuelib.EventDownloadCompleted:
		if tb, ok := v.bars[ref]; ok {
			tb.bar.SetTotal(-1, true)
			delete(v.bars, ref)
		}
	case queuelib.EventDownloadFailed,
		queuelib.EventDownloadCancelled,
		queuelib.EventDownloadRequeued,
		queuelib.EventDownloadRemoved:
		if tb, ok := v.bars[ref]; ok {
			tb.bar.Abort(false)
			delete(v.bars, ref)
		}
	}
}

func (v *barView) progress(p *common.ProgressNotification) {
	v.mu.Lock()
	defer v.mu.Unlock()
	tb := v.get(p.FileRef, "", p.Total)
	if p.Total > 0 {
		tb.bar.SetTotal(p.Total, false)
	}
	now := time.Now()
	tb.bar.EwmaSetCurrent(p.Downloaded, now.Sub(tb.last))
	tb.last = now
}
