package audit

import (
	"encoding/json"
	"log"
	"time"
)

type Event struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	AccountID string    `json:"account_id"`
	Amount    int64     `json:"amount"`
	Status    string    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

// Logger emits JSON audit lines for every money movement and publish attempt.
type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (a *Logger) LogCharge(accountID string, amount int64, kind, status string) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "CHARGE",
		AccountID: accountID,
		Amount:    amount,
		Status:    status,
		Details:   map[string]string{"kind": kind},
	})
}

func (a *Logger) LogCredit(accountID string, amount int64, kind string) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "CREDIT",
		AccountID: accountID,
		Amount:    amount,
		Status:    "SUCCESS",
		Details:   map[string]string{"kind": kind},
	})
}

func (a *Logger) LogPublish(accountID, artifactID, targetID, status string) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "PUBLISH",
		AccountID: accountID,
		Status:    status,
		Details: map[string]string{
			"artifact_id": artifactID,
			"target_id":   targetID,
		},
	})
}

func (a *Logger) LogError(accountID, operation string, err error) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: operation,
		AccountID: accountID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
