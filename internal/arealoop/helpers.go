package arealoop

import (
	"fmt"

	"github.com/meshkv/kvstore/internal/pubqueue"
)

func errAreaMismatch(got, want string) error {
	return fmt.Errorf("area mismatch: got %q want %q", got, want)
}

func pubqueueExpiredMessage(area string, expired []string) pubqueue.Message {
	return pubqueue.Message{Publication: &pubqueue.Publication{Area: area, ExpiredKeys: expired}}
}
