package queueaccess

import (
	"context"
	"fmt"
	"time"

	"fieldsync/internal/ipc"
	"fieldsync/internal/queue"
)

// Access provides queue operations regardless of IPC or direct store backing.
type Access interface {
	Stats(ctx context.Context) (map[string]int, error)
	List(ctx context.Context, statuses []string) ([]ipc.QueueItem, error)
	Describe(ctx context.Context, id string) (*ipc.QueueItem, error)
	Retry(ctx context.Context, ids []string) (int64, error)
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)
	Clear(ctx context.Context, statuses []string) (int64, error)
	Health(ctx context.Context) (queue.HealthSummary, error)
	DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error)
}

// NewIPCAccess returns an Access backed by daemon IPC.
func NewIPCAccess(client *ipc.Client) Access {
	return &ipcAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct DB access. retention is
// the purge age used when Purge is called with zero.
func NewStoreAccess(store *queue.Store, retention time.Duration) Access {
	return &storeAccess{store: store, retention: retention}
}

type ipcAccess struct {
	client *ipc.Client
}

func (a *ipcAccess) Stats(_ context.Context) (map[string]int, error) {
	resp, err := a.client.Status()
	if err != nil {
		return nil, err
	}
	return resp.QueueStats, nil
}

func (a *ipcAccess) List(_ context.Context, statuses []string) ([]ipc.QueueItem, error) {
	resp, err := a.client.QueueList(statuses)
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Describe maps the server's not-found error to nil; errors lose their type
// on the wire.
func (a *ipcAccess) Describe(_ context.Context, id string) (*ipc.QueueItem, error) {
	resp, err := a.client.QueueDescribe(id)
	if err != nil {
		if isNotFoundMessage(err) {
			return nil, nil
		}
		return nil, err
	}
	return &resp.Item, nil
}

func (a *ipcAccess) Retry(_ context.Context, ids []string) (int64, error) {
	resp, err := a.client.QueueRetry(ids)
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (a *ipcAccess) Purge(_ context.Context, olderThan time.Duration) (int64, error) {
	resp, err := a.client.QueuePurge(olderThan)
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *ipcAccess) Clear(_ context.Context, statuses []string) (int64, error) {
	resp, err := a.client.QueueClear(statuses)
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *ipcAccess) Health(_ context.Context) (queue.HealthSummary, error) {
	resp, err := a.client.QueueHealth()
	if err != nil {
		return queue.HealthSummary{}, err
	}
	return queue.HealthSummary(*resp), nil
}

func (a *ipcAccess) DatabaseHealth(_ context.Context) (queue.DatabaseHealth, error) {
	resp, err := a.client.DatabaseHealth()
	if err != nil {
		return queue.DatabaseHealth{}, err
	}
	return queue.DatabaseHealth(*resp), nil
}

type storeAccess struct {
	store     *queue.Store
	retention time.Duration
}

func (a *storeAccess) Stats(ctx context.Context) (map[string]int, error) {
	stats, err := a.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out, nil
}

func (a *storeAccess) List(ctx context.Context, statuses []string) ([]ipc.QueueItem, error) {
	filters, err := parseStatuses(statuses)
	if err != nil {
		return nil, err
	}
	items, err := a.store.List(ctx, filters...)
	if err != nil {
		return nil, err
	}
	out := make([]ipc.QueueItem, 0, len(items))
	for _, item := range items {
		out = append(out, ipc.FromQueueItem(item))
	}
	return out, nil
}

func (a *storeAccess) Describe(ctx context.Context, id string) (*ipc.QueueItem, error) {
	item, err := a.store.GetByID(ctx, id)
	if err != nil || item == nil {
		return nil, err
	}
	dto := ipc.FromQueueItem(item)
	return &dto, nil
}

func (a *storeAccess) Retry(ctx context.Context, ids []string) (int64, error) {
	return a.store.RetryAbandoned(ctx, ids...)
}

func (a *storeAccess) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		olderThan = a.retention
	}
	return a.store.PurgeCompleted(ctx, time.Now().Add(-olderThan))
}

func (a *storeAccess) Clear(ctx context.Context, statuses []string) (int64, error) {
	filters, err := parseStatuses(statuses)
	if err != nil {
		return 0, err
	}
	return a.store.Clear(ctx, filters...)
}

func (a *storeAccess) Health(ctx context.Context) (queue.HealthSummary, error) {
	return a.store.Health(ctx)
}

func (a *storeAccess) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return a.store.CheckHealth(ctx)
}

func parseStatuses(values []string) ([]queue.Status, error) {
	out := make([]queue.Status, 0, len(values))
	for _, value := range values {
		status, ok := queue.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown queue status %q", value)
		}
		out = append(out, status)
	}
	return out, nil
}
