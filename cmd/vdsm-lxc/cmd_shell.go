package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/creack/pty"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func init() {
	rootCmd.AddCommand(shellCmd)
}

var shellCmd = &cobra.Command{
	Use:   "shell <ctid>",
	Short: "Open an interactive shell in a container",
	Long:  "Attaches to the specified container via pct enter under a pseudo-terminal, with window resizes forwarded to the container session.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireRoot(); err != nil {
			return err
		}
		ctid, err := parseCTID(args[0])
		if err != nil {
			return err
		}

		c := exec.Command("/usr/sbin/pct", "enter", strconv.Itoa(ctid))
		ptmx, err := pty.Start(c)
		if err != nil {
			return fmt.Errorf("starting pct enter: %w", err)
		}
		defer ptmx.Close()

		// Forward window resizes to the container session.
		winch := make(chan os.Signal, 1)
		signal.Notify(winch, syscall.SIGWINCH)
		go func() {
			for range winch {
				pty.InheritSize(os.Stdin, ptmx)
			}
		}()
		winch <- syscall.SIGWINCH
		defer func() {
			signal.Stop(winch)
			close(winch)
		}()

		oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("setting raw terminal: %w", err)
		}
		defer term.Restore(int(os.Stdin.Fd()), oldState)

		go io.Copy(ptmx, os.Stdin)
		io.Copy(os.Stdout, ptmx)

		return c.Wait()
	},
}
