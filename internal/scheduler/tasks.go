package scheduler

import (
	"encoding/json"

	"github.com/VentilardorArnor/Avantti-Vitor/internal/followup"

	"github.com/hibiken/asynq"
)

const TaskFollowupStep = "followup.step"

func NewFollowupStepTask(step followup.Step) (*asynq.Task, error) {
	data, err := json.Marshal(step)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFollowupStep, data), nil
}

func ParseFollowupStepPayload(task *asynq.Task) (followup.Step, error) {
	var step followup.Step
	if err := json.Unmarshal(task.Payload(), &step); err != nil {
		return followup.Step{}, err
	}
	return step, nil
}
