package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bft-labs/groundlink/pkg/groundlink"
)

// errQuit ends the console loop.
var errQuit = errors.New("quit")

// operator is the part of the station the console drives.
type operator interface {
	Enqueue(text string) error
	ChangeBaud(rate int) error
	StartSimulation(path string) error
	StopSimulation()
	ResetLog() error
	ExportLog(dir string) (string, error)
	ReloadSchema() error
	GetField(name string, def groundlink.Value) groundlink.Value
	Status() groundlink.StationStatus
	SimulationStatus() groundlink.SimulationStatus
}

const consoleHelp = `lines are sent as commands; directives:
  :baud N        reopen the link at N baud
  :sim PATH      replay command rows from PATH
  :sim stop      stop the replay and clear the queue
  :reset         truncate the telemetry log
  :export DIR    copy the telemetry log into DIR
  :get FIELD     print the latest value of FIELD
  :status        print station status
  :reload        reload the telemetry schema
  :quit          stop the station`

// runConsole reads operator input until EOF, :quit or ctx is done.
func runConsole(ctx context.Context, in io.Reader, out io.Writer, op operator) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case line := <-lines:
			if err := handleLine(op, line, out); err != nil {
				if errors.Is(err, errQuit) {
					return errQuit
				}
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
	}
}

// handleLine executes one console line.
func handleLine(op operator, line string, out io.Writer) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, ":") {
		return op.Enqueue(line)
	}

	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		fmt.Fprintln(out, consoleHelp)
		return nil
	}
	arg := strings.TrimSpace(strings.TrimPrefix(line[1:], fields[0]))

	switch fields[0] {
	case "baud":
		rate, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("baud: %q is not a number", arg)
		}
		if err := op.ChangeBaud(rate); err != nil {
			return err
		}
		fmt.Fprintf(out, "baud %d\n", rate)
	case "sim":
		switch arg {
		case "":
			fmt.Fprintln(out, op.SimulationStatus())
		case "stop":
			op.StopSimulation()
			fmt.Fprintln(out, op.SimulationStatus())
		default:
			return op.StartSimulation(arg)
		}
	case "reset":
		return op.ResetLog()
	case "export":
		if arg == "" {
			return errors.New("export: directory required")
		}
		path, err := op.ExportLog(arg)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "exported %s\n", path)
	case "get":
		if arg == "" {
			return errors.New("get: field name required")
		}
		v := op.GetField(arg, groundlink.Nil)
		if v.IsNil() {
			fmt.Fprintf(out, "%s: <none>\n", arg)
		} else {
			fmt.Fprintf(out, "%s: %s\n", arg, v)
		}
	case "status":
		printStatus(out, op.Status())
	case "reload":
		if err := op.ReloadSchema(); err != nil {
			return err
		}
		fmt.Fprintln(out, "schema reloaded")
	case "quit", "q":
		return errQuit
	case "help", "h":
		fmt.Fprintln(out, consoleHelp)
	default:
		return fmt.Errorf("unknown directive :%s (try :help)", fields[0])
	}
	return nil
}

func printStatus(out io.Writer, s groundlink.StationStatus) {
	link := "closed"
	if s.Link.Open {
		link = fmt.Sprintf("%s @ %d", s.Link.Port, s.Link.Baud)
	}
	fmt.Fprintf(out, "state %s, link %s\n", s.State, link)
	fmt.Fprintf(out, "packets %d received, %d rejected\n", s.Received, s.Rejected)
	fmt.Fprintf(out, "commands %d sent, %d dropped, %d failed, %d queued\n",
		s.CommandsSent, s.CommandsDropped, s.CommandsFailed, s.QueueDepth)
	if s.LastPacket != "" {
		fmt.Fprintf(out, "last packet: %s\n", s.LastPacket)
	}
}

// consolePrinter echoes command outcomes and replay progress.
type consolePrinter struct {
	groundlink.BaseEventHandler
	out io.Writer
}

func (p consolePrinter) OnCommand(res groundlink.CommandResult) {
	if res.Err != nil {
		fmt.Fprintf(p.out, "command %q %s: %v\n", res.Command.Text, res.Status, res.Err)
	}
}

func (p consolePrinter) OnSimulationStatus(status groundlink.SimulationStatus) {
	fmt.Fprintln(p.out, status)
}
