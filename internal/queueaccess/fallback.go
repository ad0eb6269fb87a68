package queueaccess

import (
	"fmt"
	"strings"
	"time"

	"fieldsync/internal/ipc"
	"fieldsync/internal/queue"
)

// Session represents a queue access handle and its cleanup function.
type Session struct {
	Access Access
	// Direct is true when the daemon was unreachable and the store was opened
	// in-process.
	Direct bool
	close  func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback tries IPC-backed access first, then falls back to direct
// store access. retention is the default purge age of the direct path.
func OpenWithFallback(
	dial func() (*ipc.Client, error),
	openStore func() (*queue.Store, error),
	retention time.Duration,
) (Session, error) {
	if dial != nil {
		if client, err := dial(); err == nil {
			return Session{
				Access: NewIPCAccess(client),
				close:  client.Close,
			}, nil
		}
	}

	if openStore == nil {
		return Session{}, fmt.Errorf("open queue store: no store opener configured")
	}
	store, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open queue store: %w", err)
	}
	return Session{
		Access: NewStoreAccess(store, retention),
		Direct: true,
		close:  store.Close,
	}, nil
}

func isNotFoundMessage(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "not found")
}
