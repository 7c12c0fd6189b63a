package service

import (
	"time"

	"vendaschat/internal/jobs"

	"github.com/hibiken/asynq"
)

// AsynqJobClient implements JobClient using asynq
type AsynqJobClient struct {
	client *asynq.Client
}

func NewAsynqJobClient(client *asynq.Client) *AsynqJobClient {
	return &AsynqJobClient{client: client}
}

func (c *AsynqJobClient) ScheduleSessionExpiry(sessionID string, in time.Duration) error {
	return jobs.ScheduleSessionExpiry(c.client, sessionID, in)
}

func (c *AsynqJobClient) ScheduleLeadFollowup(sessionID string, in time.Duration) error {
	return jobs.ScheduleLeadFollowup(c.client, sessionID, in)
}
