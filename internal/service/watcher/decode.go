package watcher

import (
	"encoding/json"

	"github.com/oshokin/threshold-alarm/internal/api/protocol"
	"github.com/oshokin/threshold-alarm/internal/domain/alarm"
)

func decodeAlarmUpdate(env protocol.Envelope) (alarm.Update, error) {
	var update alarm.Update
	err := json.Unmarshal(env.Data, &update)

	return update, err
}
