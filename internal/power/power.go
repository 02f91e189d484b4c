// Package power wraps the OS restart/shutdown collaborators. Calls are
// idempotent: a second order while one is in flight is a no-op, because the
// first one is already taking the device down.
package power

import (
	"context"
	"log/slog"
	"os/exec"
	"runtime"
	"sync/atomic"
)

// Controller is the device power interface handed to the supervisor.
type Controller interface {
	Restart(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// ExecController shells out to the platform power commands.
type ExecController struct {
	inFlight atomic.Bool
	logger   *slog.Logger
}

// NewExecController builds the default controller.
func NewExecController(logger *slog.Logger) *ExecController {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecController{logger: logger}
}

// Restart reboots the device.
func (c *ExecController) Restart(ctx context.Context) error {
	return c.run(ctx, "restart")
}

// Shutdown powers the device off.
func (c *ExecController) Shutdown(ctx context.Context) error {
	return c.run(ctx, "shutdown")
}

func (c *ExecController) run(ctx context.Context, action string) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.logger.Info("power action already in flight, ignoring", "action", action)
		return nil
	}
	c.logger.Info("executing power action", "action", action)

	name, args := command(action)
	if err := exec.CommandContext(ctx, name, args...).Run(); err != nil {
		// Allow a retry if the command itself failed.
		c.inFlight.Store(false)
		return err
	}
	return nil
}

func command(action string) (string, []string) {
	switch runtime.GOOS {
	case "windows":
		if action == "restart" {
			return "shutdown", []string{"/r", "/t", "0"}
		}
		return "shutdown", []string{"/s", "/t", "0"}
	default:
		if action == "restart" {
			return "systemctl", []string{"reboot"}
		}
		return "systemctl", []string{"poweroff"}
	}
}
