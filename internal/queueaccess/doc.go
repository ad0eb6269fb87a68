// Package queueaccess gives CLI commands one queue API whether or not the
// daemon is running: IPC when the socket answers, the SQLite store otherwise.
package queueaccess
