package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// The build and key-generation commands are pass-throughs to the external
// build tool; chatfleet only sequences them and streams their output.

const buildTimeout = 2 * time.Minute

func runPassthrough(ctx context.Context, cmdStr, dir string) error {
	parts := strings.Fields(cmdStr)
	if len(parts) == 0 {
		return fmt.Errorf("empty command")
	}
	// #nosec G204
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", parts[0], err)
	}
	return nil
}

func createBuildCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build the server binary",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := newSupervisor(flags)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), buildTimeout)
			defer cancel()
			fmt.Println("Building server...")
			if err := runPassthrough(ctx, cfg.Commands.Build, cfg.ServerDir()); err != nil {
				return fmt.Errorf("build failed: %w", err)
			}
			fmt.Println("Server built successfully")
			return nil
		},
	}
}

func createGenerateKeysCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "generate-keys",
		Short: "Generate new server keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := newSupervisor(flags)
			if err != nil {
				return err
			}
			fmt.Println("Generating new server keys...")
			if err := runPassthrough(cmd.Context(), cfg.Commands.GenerateKeys, cfg.Paths.BaseDir); err != nil {
				return fmt.Errorf("key generation failed: %w", err)
			}
			fmt.Println("Keys generated successfully")
			return nil
		},
	}
}
