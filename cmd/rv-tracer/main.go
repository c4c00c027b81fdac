// Command rv-tracer reconstructs a retired-instruction trace from a
// RISC-V E-Trace packet stream and a compiled RISC-V binary.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pulp-platform/rv-tracer/riscvdis"
	"github.com/pulp-platform/rv-tracer/trace"
	"github.com/pulp-platform/rv-tracer/trace/packet"
	"github.com/pulp-platform/rv-tracer/trace/sink"
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: rv-tracer [options] packets.bin compiled.riscv

ex:
 $> rv-tracer trace.bin firmware.riscv

options:
`,
		)
		flag.PrintDefaults()
	}
}

var (
	flagVerbose = flag.Bool("v", false, "enable/disable verbose mode")
	flagConfig  = flag.String("c", "disassembler_config.yaml", "disassembler section config")
	flagOut     = flag.String("o", "execution_trace", "output file for the retired-PC trace")
)

func main() {
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Printf("Error: expected 2 arguments (packets.bin compiled.riscv), got %d.\n", flag.NArg())
		flag.Usage()
		os.Exit(1)
	}
	packetsPath := flag.Arg(0)
	compiledPath := flag.Arg(1)

	if !fileExists(packetsPath) {
		fmt.Printf("Error: the file %s does not exist.\n", packetsPath)
		os.Exit(1)
	}
	if !fileExists(compiledPath) {
		fmt.Printf("Error: the file %s does not exist.\n", compiledPath)
		os.Exit(1)
	}
	if !strings.HasSuffix(packetsPath, ".bin") {
		fmt.Printf("Error: the file %s must be a binary file.\n", packetsPath)
		os.Exit(1)
	}
	if !strings.HasSuffix(compiledPath, ".riscv") {
		fmt.Printf("Error: the file %s must be RISC-V compiled file.\n", compiledPath)
		os.Exit(1)
	}

	if fileExists(*flagOut) {
		if err := os.Remove(*flagOut); err != nil {
			fmt.Printf("Error: could not remove stale %s: %v\n", *flagOut, err)
			os.Exit(1)
		}
	}

	trace.SetDebugMode(*flagVerbose)
	riscvdis.SetDebugMode(*flagVerbose)

	if err := run(packetsPath, compiledPath, *flagConfig, *flagOut); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func run(packetsPath, compiledPath, configPath, outPath string) error {
	cfg, err := riscvdis.LoadConfig(configPath)
	if err != nil {
		return err
	}
	instrs, err := riscvdis.BuildInstructionMap(compiledPath, cfg)
	if err != nil {
		return err
	}

	out, err := sink.NewFileSink(outPath)
	if err != nil {
		return err
	}
	defer out.Close()

	f, err := os.Open(packetsPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", packetsPath, err)
	}
	defer f.Close()

	proc := trace.NewProcessor(instrs, out, nil, trace.ReturnStackDepth)
	parser := packet.NewParser()

	for {
		pkt, err := parser.Next(f)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(packetsPath), err)
		}
		if err := proc.Process(pkt); err != nil {
			if errors.Is(err, riscvdis.ErrEndOfTrace) {
				break
			}
			return err
		}
	}
	return nil
}
