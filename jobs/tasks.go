package jobs

import (
	"encoding/json"
	"errors"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSocialLinkVerify polls the backend until a pending social link shows up.
	TaskSocialLinkVerify = "social:link:verify"
	// TaskBackendPing probes backend reachability.
	TaskBackendPing = "backend:ping"
)

// LinkVerifyPayload identifies the link to verify.
type LinkVerifyPayload struct {
	LinkID string `json:"link_id"`
}

// NewLinkVerifyTask constructs an Asynq task verifying linkID.
func NewLinkVerifyTask(linkID string) (*asynq.Task, error) {
	if linkID == "" {
		return nil, errors.New("jobs: link id required")
	}
	data, err := json.Marshal(LinkVerifyPayload{LinkID: linkID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSocialLinkVerify, data), nil
}

// NewBackendPingTask constructs the periodic backend probe.
func NewBackendPingTask() *asynq.Task {
	return asynq.NewTask(TaskBackendPing, nil)
}
