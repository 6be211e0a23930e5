// Command rvm loads an RLINK binary and runs it on the banked VM.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/typthon/rvm-toolchain/pkg/binary"
	"github.com/typthon/rvm-toolchain/pkg/isa"
	"github.com/typthon/rvm-toolchain/pkg/logger"
	"github.com/typthon/rvm-toolchain/pkg/vm"
)

const defaultNumBanks = 16

func main() {
	os.Exit(run())
}

func run() int {
	var trace bool

	cmd := &cobra.Command{
		Use:   "rvm [binary]",
		Short: "run an RLINK binary on the banked VM",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().BoolVarP(&trace, "trace", "t", false, "enter debug mode: BRK pauses instead of halting")

	exitCode := 0
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		_ = logger.Init(logger.DefaultConfig())
		logger.LogVMStart(args[0], trace)

		raw, err := os.ReadFile(args[0])
		if err != nil {
			exitCode = 1
			return err
		}
		img, err := binary.Decode(raw)
		if err != nil {
			exitCode = 1
			return err
		}

		bankSize := img.BankSize
		if bankSize == 0 {
			bankSize = 4096
		}

		machine := vm.New(img.Instructions, bankSize, defaultNumBanks)
		machine.Debug = trace
		machine.SetSymbols(img.Debug)
		machine.Mem.LoadData(uint16(isa.DataSectionOffset), img.Data)
		machine.TTY.Out = func(b byte) { os.Stdout.Write([]byte{b}) }
		machine.SetEntry(int(img.EntryPoint))

		if err := machine.Run(); err != nil {
			pc, bank := uint16(0), uint16(0)
			if f, ok := err.(*vm.Fault); ok {
				pc, bank = f.PC, f.Bank
			}
			logger.LogVMFault(pc, bank, err.Error())
			fmt.Fprintln(os.Stderr, err)
			exitCode = 1
			return nil
		}

		if machine.State != vm.StateHalted && machine.State != vm.StateBreakpoint {
			exitCode = 1
		}
		return nil
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return exitCode
}
