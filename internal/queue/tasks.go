package queue

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	TypeLullabyGenerate = "lullaby:generate"

	QueueCritical = "critical"
	QueueDefault  = "default"
)

type LullabyGeneratePayload struct {
	LullabyID string `json:"lullaby_id"`
}

// TaskID is the asynq task id of a lullaby. Enqueueing the same lullaby
// twice while a task is pending is refused by asynq.
func TaskID(lullabyID uuid.UUID) string {
	return "lullaby:" + lullabyID.String()
}

func NewLullabyGenerateTask(lullabyID uuid.UUID) (*asynq.Task, error) {
	data, err := json.Marshal(LullabyGeneratePayload{LullabyID: lullabyID.String()})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TypeLullabyGenerate, data), nil
}

func ParseLullabyGeneratePayload(t *asynq.Task) (uuid.UUID, error) {
	var p LullabyGeneratePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return uuid.Nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	id, err := uuid.Parse(p.LullabyID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse lullaby ID: %w", err)
	}
	return id, nil
}
