// Command rvc is the compiler entry point: it drives module lowering and
// linking into an RLINK binary.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/typthon/rvm-toolchain/pkg/binary"
	"github.com/typthon/rvm-toolchain/pkg/ir"
	"github.com/typthon/rvm-toolchain/pkg/linker"
	"github.com/typthon/rvm-toolchain/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		output    string
		bankSize  uint16
		emitDebug bool
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "rvc [module]",
		Short: "compile a typed module into an RLINK binary for the banked VM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logger.InitDev()
			} else {
				_ = logger.Init(logger.DefaultConfig())
			}

			start := time.Now()
			logger.LogCompilerStart(args)

			mod, err := loadModule(args[0])
			if err != nil {
				logger.LogCompilerComplete(false, time.Since(start).String())
				return err
			}

			logger.LogLinkingStart(len(mod.Functions))
			l := linker.New(bankSize)
			l.EmitDebug = emitDebug
			img, err := l.Link(mod)
			if err != nil {
				logger.LogCompilerComplete(false, time.Since(start).String())
				return err
			}

			if err := os.WriteFile(output, binary.Encode(img), 0644); err != nil {
				logger.LogCompilerComplete(false, time.Since(start).String())
				return err
			}

			logger.LogLinkingComplete(output)
			logger.LogCompilerComplete(true, time.Since(start).String())
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "a.rlink", "output binary path")
	cmd.Flags().Uint16Var(&bankSize, "bank-size", 4096, "words per memory bank")
	cmd.Flags().BoolVar(&emitDebug, "debug-symbols", false, "embed a DEBUG section with function symbols")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug-level logging")

	return cmd
}

// loadModule is the frontend boundary: this toolchain accepts an
// already-built ir.Module, since the lexer/parser/semantic analyzer that
// would produce one from C source are a separate collaborator. Callers
// embedding this package construct a Module directly with pkg/ir's
// Builder. No front end is wired in here, so loadModule always returns an
// error naming path.
func loadModule(path string) (*ir.Module, error) {
	return nil, fmt.Errorf("rvc: %q: no front end is wired into this CLI; build an *ir.Module with pkg/ir and call pkg/linker directly", path)
}
