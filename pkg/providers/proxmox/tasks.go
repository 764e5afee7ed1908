package proxmox

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/openconverge/converge/pkg/engine"
)

// taskStatus is the provider's task status response.
type taskStatus struct {
	Status     string `json:"status"`
	ExitStatus string `json:"exitstatus"`
}

func (t taskStatus) finished() bool {
	return t.Status == "stopped"
}

func (t taskStatus) succeeded() bool {
	return t.ExitStatus == "OK"
}

// waitForTask polls the status of an asynchronous provider task (identified
// by its UPID token) on a fixed interval until it reaches a terminal state
// or the overall timeout expires. Abandoning the wait leaves the provider
// side operation to complete or fail on its own; there is no cancel call.
func (e *Engine) waitForTask(ctx context.Context, upid string) error {
	deadline := time.Now().Add(e.taskTimeout)
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	path := fmt.Sprintf("nodes/%s/tasks/%s/status", e.node, url.PathEscape(upid))

	for {
		var status taskStatus
		err := e.guard.Run(ctx, func(ctx context.Context) error {
			return e.client.get(ctx, path, &status)
		})
		if err != nil {
			return e.wrapProviderErr("task-status", err)
		}

		if status.finished() {
			if !status.succeeded() {
				return engine.NewPermanentError(engine.ErrCodeProviderAPI,
					fmt.Sprintf("task %s failed: %s", upid, status.ExitStatus), nil)
			}
			return nil
		}

		if time.Now().After(deadline) {
			return engine.NewPermanentError(engine.ErrCodeTaskTimeout,
				fmt.Sprintf("task %s did not finish within %s", upid, e.taskTimeout), nil)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
