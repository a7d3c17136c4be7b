// Command gdapctl is a thin REPL over a simulated ARM DAP (spec.md C10):
// connect, read/write DP registers, enumerate APs, and resolve breakpoints
// against an ELF's DWARF line information. It wires no real hardware — the
// probe is always simprobe.Probe — mirroring how the teacher's RunProgramDebugMode
// drives its VM from stdin one command at a time.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/kstephano/gdap/dap"
	"github.com/kstephano/gdap/simprobe"
	"github.com/kstephano/gdap/sourceinfo"
)

func main() {
	elfPath := flag.String("elf", "", "path to an ELF image to resolve breakpoints against")
	verbose := flag.Bool("verbose", false, "enable debug logging on the DAP interface")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: levelFor(*verbose),
	}))

	var debugInfo *sourceinfo.DebugInfo
	if *elfPath != "" {
		di, err := sourceinfo.Load(*elfPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "gdapctl: %v\n", err)
			os.Exit(1)
		}
		debugInfo = di
	}

	probe := simprobe.New()
	probe.SeedDP(dap.DefaultDpAddress(), 0x1<<12, 0)

	repl := &repl{
		probe:     probe,
		logger:    logger,
		debugInfo: debugInfo,
		dp:        dap.DefaultDpAddress(),
	}
	repl.run()
}

func levelFor(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

type repl struct {
	probe     *simprobe.Probe
	logger    *slog.Logger
	debugInfo *sourceinfo.DebugInfo
	iface     *dap.Interface
	dp        dap.DpAddress
}

func (r *repl) run() {
	fmt.Printf("Commands:\n" +
		"\tconnect: bring up the DAP interface\n" +
		"\trdp <addr>: read a DP register\n" +
		"\twdp <addr> <value>: write a DP register\n" +
		"\taps: enumerate access ports\n" +
		"\tbreak <file>:<line>[:<col>] | break 0x<pc>: resolve a breakpoint\n" +
		"\tquit\n\n")

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("\n-> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "connect":
			r.cmdConnect()
		case "rdp":
			r.cmdReadDP(fields[1:])
		case "wdp":
			r.cmdWriteDP(fields[1:])
		case "aps":
			r.cmdAPs()
		case "break":
			r.cmdBreak(fields[1:])
		case "quit", "q":
			return
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}

func (r *repl) cmdConnect() {
	uninit := dap.NewUninitializedInterface(r.probe, false)
	seq := simprobe.NewSequences(r.probe)
	iface, failed, err := uninit.Initialize(context.Background(), seq, r.dp)
	if err != nil {
		fmt.Println("connect failed:", err)
		_ = failed
		return
	}
	r.iface = iface.WithLogger(r.logger)
	fmt.Println("connected")
}

func (r *repl) cmdReadDP(args []string) {
	if r.iface == nil {
		fmt.Println("not connected")
		return
	}
	if len(args) != 1 {
		fmt.Println("usage: rdp <addr>")
		return
	}
	addr, err := parseUint8(args[0])
	if err != nil {
		fmt.Println("bad address:", err)
		return
	}
	v, err := r.iface.ReadRawDPRegister(context.Background(), r.dp, dap.DpRegisterAddressOf(addr))
	if err != nil {
		fmt.Println("read failed:", err)
		return
	}
	fmt.Printf("0x%02x = 0x%08x\n", addr, v)
}

func (r *repl) cmdWriteDP(args []string) {
	if r.iface == nil {
		fmt.Println("not connected")
		return
	}
	if len(args) != 2 {
		fmt.Println("usage: wdp <addr> <value>")
		return
	}
	addr, err := parseUint8(args[0])
	if err != nil {
		fmt.Println("bad address:", err)
		return
	}
	value, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		fmt.Println("bad value:", err)
		return
	}
	if err := r.iface.WriteRawDPRegister(context.Background(), r.dp, dap.DpRegisterAddressOf(addr), uint32(value)); err != nil {
		fmt.Println("write failed:", err)
		return
	}
	fmt.Println("ok")
}

func (r *repl) cmdAPs() {
	if r.iface == nil {
		fmt.Println("not connected")
		return
	}
	aps, err := r.iface.AccessPorts(context.Background(), r.dp)
	if err != nil {
		fmt.Println("enumeration failed:", err)
		return
	}
	for ap := range aps {
		fmt.Println(ap)
	}
}

func (r *repl) cmdBreak(args []string) {
	if r.debugInfo == nil {
		fmt.Println("no -elf given, cannot resolve breakpoints")
		return
	}
	if len(args) != 1 {
		fmt.Println("usage: break <file>:<line>[:<col>] | break 0x<pc>")
		return
	}
	arg := args[0]

	if strings.HasPrefix(arg, "0x") {
		pc, err := strconv.ParseUint(arg[2:], 16, 64)
		if err != nil {
			fmt.Println("bad address:", err)
			return
		}
		bp, err := r.debugInfo.ResolveForAddress(pc)
		if err != nil {
			fmt.Println("unresolved:", err)
			return
		}
		printBreakpoint(bp)
		return
	}

	parts := strings.Split(arg, ":")
	if len(parts) < 2 {
		fmt.Println("usage: break <file>:<line>[:<col>]")
		return
	}
	file := parts[0]
	line, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		fmt.Println("bad line:", err)
		return
	}
	var column *uint64
	if len(parts) == 3 {
		c, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			fmt.Println("bad column:", err)
			return
		}
		column = &c
	}

	bp, err := r.debugInfo.ResolveForSourceLocation(file, line, column)
	if err != nil {
		fmt.Println("unresolved:", err)
		return
	}
	printBreakpoint(bp)
}

func printBreakpoint(bp sourceinfo.VerifiedBreakpoint) {
	fmt.Printf("breakpoint at 0x%x", bp.Address)
	if bp.SourceLocation.File != nil && bp.SourceLocation.Line != nil {
		fmt.Printf(" (%s:%d)", *bp.SourceLocation.File, *bp.SourceLocation.Line)
	}
	fmt.Println()
}

func parseUint8(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, err
	}
	return uint8(v), nil
}
