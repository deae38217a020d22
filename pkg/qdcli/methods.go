package qdcli

import (
	"context"

	"github.com/warpdl/queuedl/common"
	"github.com/warpdl/queuedl/pkg/queuelib"
)

func call[T any](ctx context.Context, c *Client, method string, params any) (*T, error) {
	var out T
	if err := c.rpc.CallResult(ctx, method, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Version(ctx context.Context) (*common.VersionResult, error) {
	return call[common.VersionResult](ctx, c, common.MethodVersion, nil)
}

// Add queues fileRef. Empty fields of p take the daemon's defaults.
func (c *Client) Add(ctx context.Context, p *common.AddParams) (*common.AddResult, error) {
	return call[common.AddResult](ctx, c, common.MethodAdd, p)
}

// List returns every job, or only those in one of statuses.
func (c *Client) List(ctx context.Context, statuses ...queuelib.Status) (*common.ListResult, error) {
	var params any
	if len(statuses) > 0 {
		params = &common.ListParams{Status: statuses}
	}
	return call[common.ListResult](ctx, c, common.MethodList, params)
}

func (c *Client) Get(ctx context.Context, fileRef string) (*queuelib.Snapshot, error) {
	return call[queuelib.Snapshot](ctx, c, common.MethodGet, &common.RefParams{FileRef: fileRef})
}

// Pause stops workers from taking new jobs and reports the new state.
func (c *Client) Pause(ctx context.Context) (bool, error) {
	st, err := call[common.StateResult](ctx, c, common.MethodPause, nil)
	if err != nil {
		return false, err
	}
	return st.Paused, nil
}

func (c *Client) Resume(ctx context.Context) (bool, error) {
	st, err := call[common.StateResult](ctx, c, common.MethodResume, nil)
	if err != nil {
		return false, err
	}
	return st.Paused, nil
}

func (c *Client) Cancel(ctx context.Context, fileRef string) error {
	return c.byRef(ctx, common.MethodCancel, fileRef)
}

func (c *Client) Retry(ctx context.Context, fileRef string) error {
	return c.byRef(ctx, common.MethodRetry, fileRef)
}

func (c *Client) Remove(ctx context.Context, fileRef string) error {
	return c.byRef(ctx, common.MethodRemove, fileRef)
}

// Clear deletes completed and cancelled jobs and returns how many went.
func (c *Client) Clear(ctx context.Context) (int64, error) {
	res, err := call[common.ClearResult](ctx, c, common.MethodClear, nil)
	if err != nil {
		return 0, err
	}
	return res.Removed, nil
}

// Info asks the daemon's backend for remote metadata of fileRef.
func (c *Client) Info(ctx context.Context, fileRef string) (*queuelib.FileInfo, error) {
	return call[queuelib.FileInfo](ctx, c, common.MethodInfo, &common.RefParams{FileRef: fileRef})
}

func (c *Client) byRef(ctx context.Context, method, fileRef string) error {
	_, err := call[common.EmptyResult](ctx, c, method, &common.RefParams{FileRef: fileRef})
	return err
}
