package main

import (
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

var correlationIDValue atomic.Value

func init() {
	correlationIDValue.Store("")
}

func newCorrelationID() string {
	return uuid.NewString()
}

func setCurrentCorrelationID(correlationID string) {
	correlationIDValue.Store(strings.TrimSpace(correlationID))
}

func currentCorrelationID() string {
	value, _ := correlationIDValue.Load().(string)
	return strings.TrimSpace(value)
}
