package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/onkernel/jailrun/lib/images"
	"github.com/onkernel/jailrun/lib/launcher"
	"github.com/onkernel/jailrun/lib/rootfs"
	"github.com/onkernel/jailrun/lib/version"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCommand(initializeApp).ExecuteContext(ctx)
	stop()

	os.Exit(exitCode(err, os.Stderr))
}

// exitCode maps a command error to the process exit status. A jailed command
// that exited non-zero passes its status through silently; anything else is
// reported on stderr and exits 1.
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}
	var exitErr *launcher.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	fmt.Fprintf(stderr, "jailrun: %v\n", err)
	return 1
}

// appFactory builds the application graph. Commands call it lazily so that
// version works without a valid environment.
type appFactory func() (*application, func(), error)

func newRootCommand(newApp appFactory) *cobra.Command {
	root := &cobra.Command{
		Use:   "jailrun",
		Short: "Run a command chrooted into a registry image or an empty root",
		Long: `jailrun flattens the layers of a registry image into a fresh root,
places the command binary inside it, and runs it in a new PID namespace
chrooted into that root. The command's output and exit status are passed through.

Requires CAP_SYS_CHROOT and CAP_SYS_ADMIN.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newRunCommand(newApp),
		newExecCommand(newApp),
		newVersionCommand(),
	)
	return root
}

func newRunCommand(newApp appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "run IMAGE COMMAND [ARGS...]",
		Short: "Run COMMAND inside the flattened filesystem of IMAGE",
		Example: `  jailrun run alpine /bin/ls -la /
  jailrun run ubuntu:22.04 /usr/bin/env`,
		Args:               cobra.MinimumNArgs(2),
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceErrors = true
			cmd.SilenceUsage = true

			ref, err := images.ParseReference(args[0])
			if err != nil {
				return err
			}

			app, cleanup, err := newApp()
			if err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			defer cleanup()

			source := &rootfs.RegistryPull{
				Client:       app.Registry,
				Reference:    ref,
				ScratchDir:   app.Paths.Downloads(),
				MaxLayerSize: app.Config.MaxLayerSize,
				Metrics:      app.Metrics,
				Logger:       app.Logger,
			}
			return app.Bootstrapper.Run(cmd.Context(), source, args[1], args[2:])
		},
	}
}

func newExecCommand(newApp appFactory) *cobra.Command {
	return &cobra.Command{
		Use:                "exec COMMAND [ARGS...]",
		Short:              "Run a local binary alone in an empty root",
		Example:            `  jailrun exec ./static-binary --flag`,
		Args:               cobra.MinimumNArgs(1),
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceErrors = true
			cmd.SilenceUsage = true

			app, cleanup, err := newApp()
			if err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			defer cleanup()
			return app.Bootstrapper.Run(cmd.Context(), rootfs.LocalCopy{}, args[0], args[1:])
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the jailrun version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Version)
		},
	}
}
