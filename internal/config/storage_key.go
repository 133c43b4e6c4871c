package config

import "fmt"

// StorageKeyStruct builds the well-known durable storage keys. One active
// session snapshot exists per student key; starting a new exam overwrites
// any prior snapshot under the same key.
type StorageKeyStruct struct{}

func NewStorageKeyStruct() *StorageKeyStruct {
	return &StorageKeyStruct{}
}

// ActiveSessionKey returns the snapshot key for a student's active session.
func (r *StorageKeyStruct) ActiveSessionKey(studentKey string) string {
	return fmt.Sprintf("session:%s:active", studentKey)
}

// PendingSubmissionsKey returns the key holding the offline submission queue.
func (r *StorageKeyStruct) PendingSubmissionsKey() string {
	return "pending_submissions"
}

// ResultFallbackKey returns the key for the local copy of a submitted
// result, kept regardless of delivery outcome.
func (r *StorageKeyStruct) ResultFallbackKey(submissionID string) string {
	return fmt.Sprintf("exam_result:%s", submissionID)
}

var StorageKey = NewStorageKeyStruct()
