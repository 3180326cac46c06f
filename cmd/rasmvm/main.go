// Command rasmvm is the reference CLI for RASM/RVM: it assembles source
// files into bytecode and runs bytecode files to completion, mirroring the
// original's "/a src dst" and "/e path" console modes as two subcommands.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"rasmvm/pkg/asm"
	"rasmvm/pkg/utils"
	"rasmvm/pkg/vm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rasmvm",
		Short: "Assemble and run RASM programs on RVM",
	}
	root.AddCommand(newAssembleCmd(), newRunCmd())
	return root
}

func newAssembleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assemble <src> <dst>",
		Short: "Assemble a RASM source file into a bytecode file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssemble(args[0], args[1])
		},
	}
}

func newRunCmd() *cobra.Command {
	var memSize int
	cmd := &cobra.Command{
		Use:   "run <path>",
		Short: "Run a bytecode file to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBytecode(args[0], memSize)
		},
	}
	cmd.Flags().IntVar(&memSize, "mem-size", vm.DefaultMemSize, "size in bytes of the machine's memory image")
	return cmd
}

func runAssemble(srcPath, dstPath string) error {
	fullSrc, _, err := utils.GetPathInfo(srcPath)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", srcPath, err)
	}
	src, err := os.ReadFile(fullSrc)
	if err != nil {
		return fmt.Errorf("reading %s: %w", fullSrc, err)
	}

	code, diags := asm.Assemble(string(src))
	fmt.Print(diags.String())
	if diags.HasErrors() {
		return fmt.Errorf("assembly failed with %d error(s)", len(diags))
	}

	fullDst, _, err := utils.GetPathInfo(dstPath)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", dstPath, err)
	}
	if err := os.WriteFile(fullDst, code, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", fullDst, err)
	}
	log.Printf("assembled %d bytes -> %s", len(code), fullDst)
	return nil
}

func runBytecode(path string, memSize int) error {
	fullPath, _, err := utils.GetPathInfo(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	program, err := os.ReadFile(fullPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", fullPath, err)
	}

	io := vm.NewStdHostIO(bufio.NewReader(os.Stdin), os.Stdout)
	m, err := vm.NewMachine(program, memSize, io)
	if err != nil {
		return err
	}
	if err := m.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}
