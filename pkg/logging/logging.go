package logging

import (
	"encoding/json"
	"log"
	"time"
)

// Fields is one JSON log line. Empty fields are omitted.
type Fields struct {
	Component string `json:"component"`
	OrderID   string `json:"order_id,omitempty"`
	Event     string `json:"event,omitempty"`
	Status    string `json:"status,omitempty"`
	Key       string `json:"key,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
}

type line struct {
	Fields
	Timestamp string `json:"timestamp"`
}

func Log(fields Fields) {
	data, err := json.Marshal(line{Fields: fields, Timestamp: time.Now().UTC().Format(time.RFC3339Nano)})
	if err != nil {
		log.Printf("{\"component\":%q,\"status\":\"log_error\",\"error\":%q}", fields.Component, err.Error())
		return
	}
	log.Print(string(data))
}
