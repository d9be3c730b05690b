// Package interactive provides the interactive command-line interface
// for devhostd.
package interactive

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/devhost-project/devhost-go/pkg/driver"
	"github.com/devhost-project/devhost-go/pkg/fileops"
	"github.com/devhost-project/devhost-go/pkg/modbus"
	"github.com/devhost-project/devhost-go/pkg/registry"
)

// shellFile is an open file tracked by the shell.
type shellFile struct {
	file *registry.File
	node string
}

// Shell handles interactive mode for devhostd.
type Shell struct {
	reg     *registry.Registry
	drv     *driver.Driver
	handler *modbus.Handler
	rl      *readline.Instance

	files  map[int]*shellFile
	nextFD int
}

// New creates a new interactive shell.
func New(reg *registry.Registry, drv *driver.Driver, handler *modbus.Handler) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "devhost> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Shell{
		reg:     reg,
		drv:     drv,
		handler: handler,
		rl:      rl,
		files:   make(map[int]*shellFile),
		nextFD:  1,
	}, nil
}

// Stdout returns a writer that properly coordinates with the readline
// input. Use this for log output to avoid interfering with the prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Stderr returns a writer that properly coordinates with the readline input.
func (s *Shell) Stderr() io.Writer {
	return s.rl.Stderr()
}

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()
	defer s.closeAll()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			s.printHelp()

		case "status":
			s.cmdStatus()

		case "ls", "nodes":
			s.cmdNodes()

		case "register":
			s.cmdRegister(ctx)

		case "unregister":
			s.cmdUnregister()

		case "open", "o":
			s.cmdOpen(ctx, args)

		case "close", "c":
			s.cmdClose(ctx, args)

		case "read", "r":
			s.cmdRead(ctx, args)

		case "write", "w":
			s.cmdWrite(ctx, args)

		case "ioctl":
			s.cmdIoctl(ctx, args)

		case "files":
			s.cmdFiles()

		case "sessions":
			s.cmdSessions()

		case "quit", "exit", "q":
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(s.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.rl.Stdout(), `
Device Host Commands:
  Driver Lifecycle:
    register           - Register the driver (allocate, bind, publish)
    unregister         - Unregister the driver and remove its nodes
    status             - Show driver and host status
    ls                 - List published nodes

  File Operations:
    open <node>        - Open a node, prints a file id (#1, #2, ...)
    close <#id>        - Close an open file
    read <#id> <off> <len>    - Read bytes at an offset
    write <#id> <off> <text>  - Write text at an offset
    ioctl <#id> <cmd> [arg]   - Issue a device command (0x.. accepted)
    files              - List files opened by this shell
    sessions           - Show live device sessions

  General:
    help               - Show this help
    quit               - Exit devhostd

  Node Format:
    class/name - e.g., modbus_class/modbus_dev0`)
}

func (s *Shell) cmdStatus() {
	out := s.rl.Stdout()

	fmt.Fprintf(out, "Driver state:   %s\n", s.drv.State())
	if region := s.drv.Region(); !region.IsZero() {
		fmt.Fprintf(out, "Region:         %s\n", region)
	}
	fmt.Fprintf(out, "Nodes:          %d\n", s.reg.NodeCount())
	fmt.Fprintf(out, "Open files:     %d (total opens %d)\n", s.reg.OpenFiles(), s.reg.TotalOpens())
	fmt.Fprintf(out, "Live sessions:  %d\n", s.handler.Sessions().Live())
}

func (s *Shell) cmdNodes() {
	nodes := s.reg.Nodes()
	if len(nodes) == 0 {
		fmt.Fprintln(s.rl.Stdout(), "No nodes published")
		return
	}
	for _, path := range nodes {
		ref, err := s.reg.Lookup(path)
		if err != nil {
			fmt.Fprintf(s.rl.Stdout(), "  %s\n", path)
			continue
		}
		fmt.Fprintf(s.rl.Stdout(), "  %s (%s)\n", path, ref.Num)
	}
}

func (s *Shell) cmdRegister(ctx context.Context) {
	if err := s.drv.Register(ctx); err != nil {
		s.printError(err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Registered (region %s)\n", s.drv.Region())
	for _, path := range s.drv.NodePaths() {
		fmt.Fprintf(s.rl.Stdout(), "  %s\n", path)
	}
}

func (s *Shell) cmdUnregister() {
	if err := s.drv.Unregister(); err != nil {
		s.printError(err)
		return
	}
	fmt.Fprintln(s.rl.Stdout(), "Unregistered")
}

func (s *Shell) cmdOpen(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: open <class/name>")
		return
	}

	file, err := s.reg.Open(ctx, args[0])
	if err != nil {
		s.printError(err)
		return
	}

	id := s.nextFD
	s.nextFD++
	s.files[id] = &shellFile{file: file, node: args[0]}
	fmt.Fprintf(s.rl.Stdout(), "Opened %s as #%d (session %s)\n", args[0], id, file.TraceID())
}

func (s *Shell) cmdClose(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: close <#id>")
		return
	}
	id, sf, ok := s.lookupFile(args[0])
	if !ok {
		return
	}

	if err := sf.file.Close(ctx); err != nil {
		s.printError(err)
		return
	}
	delete(s.files, id)
	fmt.Fprintf(s.rl.Stdout(), "Closed #%d (%s)\n", id, sf.node)
}

func (s *Shell) cmdRead(ctx context.Context, args []string) {
	if len(args) != 3 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: read <#id> <offset> <length>")
		return
	}
	_, sf, ok := s.lookupFile(args[0])
	if !ok {
		return
	}
	off, err := strconv.ParseInt(args[1], 0, 64)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid offset: %v\n", err)
		return
	}
	length, err := strconv.ParseUint(args[2], 0, 32)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid length: %v\n", err)
		return
	}

	buf := make([]byte, length)
	n, err := sf.file.Read(ctx, buf, off)
	if err != nil {
		s.printError(err)
		return
	}
	if n == 0 {
		fmt.Fprintln(s.rl.Stdout(), "0 bytes (end of data)")
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "%d bytes: %q\n", n, buf[:n])
}

func (s *Shell) cmdWrite(ctx context.Context, args []string) {
	if len(args) < 3 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: write <#id> <offset> <text>")
		return
	}
	_, sf, ok := s.lookupFile(args[0])
	if !ok {
		return
	}
	off, err := strconv.ParseInt(args[1], 0, 64)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid offset: %v\n", err)
		return
	}

	data := []byte(strings.Join(args[2:], " "))
	n, err := sf.file.Write(ctx, data, off)
	if err != nil {
		s.printError(err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "%d of %d bytes accepted\n", n, len(data))
}

func (s *Shell) cmdIoctl(ctx context.Context, args []string) {
	if len(args) != 2 && len(args) != 3 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: ioctl <#id> <cmd> [arg]")
		return
	}
	_, sf, ok := s.lookupFile(args[0])
	if !ok {
		return
	}
	cmd, err := strconv.ParseUint(args[1], 0, 32)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid command: %v\n", err)
		return
	}
	var arg uint64
	if len(args) == 3 {
		arg, err = strconv.ParseUint(args[2], 0, 64)
		if err != nil {
			fmt.Fprintf(s.rl.Stdout(), "Invalid argument: %v\n", err)
			return
		}
	}

	if err := sf.file.Ioctl(ctx, uint32(cmd), arg); err != nil {
		s.printError(err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "ioctl 0x%x acknowledged\n", cmd)
}

func (s *Shell) cmdFiles() {
	if len(s.files) == 0 {
		fmt.Fprintln(s.rl.Stdout(), "No open files")
		return
	}

	ids := make([]int, 0, len(s.files))
	for id := range s.files {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		sf := s.files[id]
		fmt.Fprintf(s.rl.Stdout(), "  #%d %s (session %s)\n", id, sf.node, sf.file.TraceID())
	}
}

func (s *Shell) cmdSessions() {
	fmt.Fprintf(s.rl.Stdout(), "Live sessions: %d\n", s.handler.Sessions().Live())
}

// lookupFile resolves a "#n" or "n" argument to an open file.
func (s *Shell) lookupFile(arg string) (int, *shellFile, bool) {
	id, err := strconv.Atoi(strings.TrimPrefix(arg, "#"))
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid file id %q\n", arg)
		return 0, nil, false
	}
	sf, ok := s.files[id]
	if !ok {
		fmt.Fprintf(s.rl.Stdout(), "No open file #%d (see 'files')\n", id)
		return 0, nil, false
	}
	return id, sf, true
}

// closeAll releases every file the shell still holds open.
func (s *Shell) closeAll() {
	for id, sf := range s.files {
		_ = sf.file.Close(context.Background())
		delete(s.files, id)
	}
}

func (s *Shell) printError(err error) {
	e := fileops.ErrnoOf(err)
	fmt.Fprintf(s.rl.Stdout(), "Error: %v [%s]\n", err, e)
}
