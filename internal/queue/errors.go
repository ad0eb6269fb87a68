package queue

import "fieldsync/internal/services"

// ErrorClassifier allows errors to declare their classification for the
// error_kind column. It is the same hook services.KindOf consults.
type ErrorClassifier = services.Classifier

// FailureKind maps an upload error onto the persisted error_kind value.
func FailureKind(err error) string {
	return string(services.KindOf(err))
}
