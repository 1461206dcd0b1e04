package utils

import (
	"strings"

	"github.com/google/uuid"
)

// ShortID returns the first n hex digits of a random UUID.
func ShortID(n int) string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n <= 0 || n > len(hex) {
		return hex
	}
	return hex[:n]
}

// NewPlanID returns an identifier for a plan the model left unnamed.
func NewPlanID() string {
	return "fw_plan_" + ShortID(8)
}

// NewRunID returns an identifier for one workflow run.
func NewRunID() string {
	return uuid.NewString()
}
