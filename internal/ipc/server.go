package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"log/slog"

	"fieldsync/internal/daemon"
	"fieldsync/internal/logging"
	"fieldsync/internal/queue"
	"fieldsync/internal/services"
)

// serviceName prefixes every RPC method ("Fieldsync.Status", ...).
const serviceName = "Fieldsync"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("ipc server requires socket path")
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: ctx}
	if err := rpcServer.RegisterName(serviceName, srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Path returns the socket path the server listens on.
func (s *Server) Path() string {
	return s.path
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.StartedAt = status.StartedAt
	resp.SyncActive = status.Sync.Active
	resp.PendingCount = status.Sync.PendingCount
	resp.AbandonedCount = status.Sync.AbandonedCount
	if !status.Sync.LastSyncTime.IsZero() {
		last := status.Sync.LastSyncTime
		resp.LastSyncTime = &last
	}
	resp.LastRunID = status.Sync.LastRunID
	resp.LastError = status.Sync.LastError
	resp.Connectivity = string(status.Connectivity)
	resp.QueueStats = make(map[string]int, len(status.QueueStats))
	for k, v := range status.QueueStats {
		resp.QueueStats[string(k)] = v
	}
	resp.QueueDBPath = status.QueueDBPath
	resp.RecordsDBPath = status.RecordsDBPath
	resp.LockPath = status.LockFilePath
	resp.FreeBytes = status.FreeBytes
	return nil
}

func (s *service) Sync(req SyncRequest, resp *SyncResponse) error {
	s.logger.Debug("sync requested", logging.Bool("force", req.Force))
	result, err := s.daemon.Sync(s.ctx, req.Force)
	resp.Result = result
	if err != nil {
		return err
	}
	s.logger.Info("sync run finished via IPC",
		logging.String(logging.FieldEventType, "sync_requested"),
		logging.String(logging.FieldRunID, result.RunID),
		logging.Int("claimed", result.Claimed()))
	return nil
}

func (s *service) Enqueue(req EnqueueRequest, resp *EnqueueResponse) error {
	entityType, ok := queue.ParseEntityType(req.EntityType)
	if !ok {
		return services.Wrap(services.ErrValidation, "ipc", "enqueue", fmt.Sprintf("unknown entity type %q", req.EntityType), nil)
	}
	op, ok := queue.ParseOperation(req.Operation)
	if !ok {
		return services.Wrap(services.ErrValidation, "ipc", "enqueue", fmt.Sprintf("unknown operation %q", req.Operation), nil)
	}
	result, err := s.daemon.Enqueue(s.ctx, entityType, req.EntityID, op)
	if err != nil {
		return err
	}
	resp.Item = FromQueueItem(result.Item)
	resp.Created = result.Created
	resp.Coalesced = result.Coalesced
	resp.Superseded = result.Superseded
	return nil
}

func (s *service) Import(req ImportRequest, resp *ImportResponse) error {
	summary, err := s.daemon.Import(s.ctx, req.Path)
	resp.Summary = summary
	return err
}

func (s *service) QueueList(req QueueListRequest, resp *QueueListResponse) error {
	statuses, err := parseStatuses(req.Statuses)
	if err != nil {
		return err
	}
	items, err := s.daemon.ListQueue(s.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Items = make([]QueueItem, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		resp.Items = append(resp.Items, FromQueueItem(item))
	}
	return nil
}

func (s *service) QueueDescribe(req QueueDescribeRequest, resp *QueueDescribeResponse) error {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return errors.New("queue item id is required")
	}
	item, err := s.daemon.GetQueueItem(s.ctx, id)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("queue item %s not found", id)
	}
	resp.Item = FromQueueItem(item)
	return nil
}

func (s *service) QueueRetry(req QueueRetryRequest, resp *QueueRetryResponse) error {
	s.logger.Debug("queue retry requested", logging.Int("item_count", len(req.IDs)))
	updated, err := s.daemon.RetryAbandoned(s.ctx, req.IDs)
	if err != nil {
		return err
	}
	resp.Updated = updated
	s.logger.Info("queue items retried",
		logging.String(logging.FieldEventType, "queue_retry"),
		logging.Int64("updated_count", updated))
	return nil
}

func (s *service) QueuePurge(req QueuePurgeRequest, resp *QueuePurgeResponse) error {
	removed, err := s.daemon.PurgeCompleted(s.ctx, time.Duration(req.OlderThanSeconds)*time.Second)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.logger.Info("completed queue items purged",
		logging.String(logging.FieldEventType, "queue_purge"),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) QueueClear(req QueueClearRequest, resp *QueueClearResponse) error {
	statuses, err := parseStatuses(req.Statuses)
	if err != nil {
		return err
	}
	removed, err := s.daemon.ClearQueue(s.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Removed = removed
	s.logger.Info("queue cleared",
		logging.String(logging.FieldEventType, "queue_clear"),
		logging.Int("status_count", len(statuses)),
		logging.Int64("removed_count", removed))
	return nil
}

func (s *service) QueueHealth(_ QueueHealthRequest, resp *QueueHealthResponse) error {
	health, err := s.daemon.QueueHealth(s.ctx)
	if err != nil {
		return err
	}
	resp.Total = health.Total
	resp.Pending = health.Pending
	resp.Processing = health.Processing
	resp.Failed = health.Failed
	resp.Abandoned = health.Abandoned
	resp.Completed = health.Completed
	resp.OldestPending = health.OldestPending
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	if err != nil && health.Error == "" {
		return err
	}
	resp.DBPath = health.DBPath
	resp.DatabaseExists = health.DatabaseExists
	resp.DatabaseReadable = health.DatabaseReadable
	resp.SchemaVersion = health.SchemaVersion
	resp.TableExists = health.TableExists
	resp.ColumnsPresent = append(resp.ColumnsPresent, health.ColumnsPresent...)
	resp.MissingColumns = append(resp.MissingColumns, health.MissingColumns...)
	resp.IntegrityCheck = health.IntegrityCheck
	resp.TotalItems = health.TotalItems
	resp.Error = health.Error
	return err
}

// parseStatuses rejects unknown names rather than silently widening the filter.
func parseStatuses(values []string) ([]queue.Status, error) {
	statuses := make([]queue.Status, 0, len(values))
	for _, value := range values {
		parsed, ok := queue.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown queue status %q", value)
		}
		statuses = append(statuses, parsed)
	}
	return statuses, nil
}
