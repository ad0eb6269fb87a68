package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"fieldsync/internal/ipc"
	"fieldsync/internal/queue"
)

var statusCaser = cases.Title(language.Und)

func buildQueueStatusRows(stats map[string]int) [][]string {
	if len(stats) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(stats))
	// Lifecycle order reads better than alphabetical.
	for _, status := range queue.AllStatuses() {
		count, ok := stats[string(status)]
		if !ok {
			continue
		}
		rows = append(rows, []string{formatStatusLabel(string(status)), fmt.Sprintf("%d", count)})
	}
	return rows
}

func buildQueueListRows(items []ipc.QueueItem) [][]string {
	if len(items) == 0 {
		return nil
	}
	sorted := make([]ipc.QueueItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	rows := make([][]string, 0, len(sorted))
	for _, item := range sorted {
		rows = append(rows, []string{
			item.ID,
			formatStatusLabel(item.EntityType),
			item.EntityID,
			item.Operation,
			formatStatusLabel(item.Status),
			fmt.Sprintf("%d/%d", item.RetryCount, item.MaxRetries),
			formatDisplayTime(item.ScheduledAt),
			truncate(item.ErrorMessage, 48),
		})
	}
	return rows
}

// formatStatusLabel turns "SETUP_CONFIG" into "Setup Config".
func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	return statusCaser.String(strings.ReplaceAll(strings.ToLower(status), "_", " "))
}

func formatDisplayTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}

func describeQueueItem(item ipc.QueueItem) [][]string {
	rows := [][]string{
		{"ID", item.ID},
		{"Entity", fmt.Sprintf("%s %s", formatStatusLabel(item.EntityType), item.EntityID)},
		{"Operation", item.Operation},
		{"Status", formatStatusLabel(item.Status)},
		{"Priority", fmt.Sprintf("%d", item.Priority)},
		{"Retries", fmt.Sprintf("%d of %d", item.RetryCount, item.MaxRetries)},
		{"Scheduled", formatDisplayTime(item.ScheduledAt)},
		{"Created", formatDisplayTime(item.CreatedAt)},
		{"Updated", formatDisplayTime(item.UpdatedAt)},
	}
	if item.ProcessedAt != nil {
		rows = append(rows, []string{"Processed", formatDisplayTime(*item.ProcessedAt)})
	}
	if item.LastHeartbeat != nil {
		rows = append(rows, []string{"Heartbeat", formatDisplayTime(*item.LastHeartbeat)})
	}
	if item.Superseded {
		rows = append(rows, []string{"Superseded", "yes, next " + item.NextOperation})
	}
	if item.ErrorKind != "" {
		rows = append(rows, []string{"Error kind", item.ErrorKind})
	}
	if item.ErrorMessage != "" {
		rows = append(rows, []string{"Error", item.ErrorMessage})
	}
	return rows
}
