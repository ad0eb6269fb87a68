package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(serviceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// Sync asks the daemon to run a sync now. force bypasses the connectivity
// policy but never makes an offline device reachable.
func (c *Client) Sync(force bool) (*SyncResponse, error) {
	return call[SyncResponse](c, "Sync", SyncRequest{Force: force})
}

// Enqueue records a mutation directly in the daemon's queue.
func (c *Client) Enqueue(entityType, entityID, operation string) (*EnqueueResponse, error) {
	return call[EnqueueResponse](c, "Enqueue", EnqueueRequest{
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  operation,
	})
}

// Import loads a YAML bundle into the daemon's records store.
func (c *Client) Import(path string) (*ImportResponse, error) {
	return call[ImportResponse](c, "Import", ImportRequest{Path: path})
}

// QueueList lists queue items filtered by status.
func (c *Client) QueueList(statuses []string) (*QueueListResponse, error) {
	return call[QueueListResponse](c, "QueueList", QueueListRequest{Statuses: statuses})
}

// QueueDescribe returns a single queue item.
func (c *Client) QueueDescribe(id string) (*QueueDescribeResponse, error) {
	return call[QueueDescribeResponse](c, "QueueDescribe", QueueDescribeRequest{ID: id})
}

// QueueRetry resets abandoned or failed items. No ids retries all of them.
func (c *Client) QueueRetry(ids []string) (*QueueRetryResponse, error) {
	return call[QueueRetryResponse](c, "QueueRetry", QueueRetryRequest{IDs: ids})
}

// QueuePurge removes completed items older than olderThan; zero uses the
// daemon's configured retention.
func (c *Client) QueuePurge(olderThan time.Duration) (*QueuePurgeResponse, error) {
	return call[QueuePurgeResponse](c, "QueuePurge", QueuePurgeRequest{OlderThanSeconds: int64(olderThan / time.Second)})
}

// QueueClear removes items in the given statuses, or every item when none are given.
func (c *Client) QueueClear(statuses []string) (*QueueClearResponse, error) {
	return call[QueueClearResponse](c, "QueueClear", QueueClearRequest{Statuses: statuses})
}

// QueueHealth returns aggregate queue diagnostics.
func (c *Client) QueueHealth() (*QueueHealthResponse, error) {
	return call[QueueHealthResponse](c, "QueueHealth", QueueHealthRequest{})
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	return call[DatabaseHealthResponse](c, "DatabaseHealth", DatabaseHealthRequest{})
}
