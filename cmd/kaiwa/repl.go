package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/harunnryd/kaiwa/internal/session"
	"github.com/harunnryd/kaiwa/internal/ui"

	"github.com/google/shlex"
)

type REPL struct {
	components *Components
	reader     *bufio.Reader
	renderer   *ui.Renderer
	signals    *SignalHandler
	endpoint   string
}

func NewREPL(components *Components, endpoint string) *REPL {
	return &REPL{
		components: components,
		reader:     bufio.NewReader(os.Stdin),
		renderer:   ui.NewRenderer(),
		signals:    NewSignalHandler(),
		endpoint:   endpoint,
	}
}

func (r *REPL) Start() error {
	store := r.components.Store

	changes, cancel := store.Subscribe(0)
	defer cancel()
	go r.printChanges(changes)

	if err := store.Connect(r.components.ConversationID); err != nil {
		return err
	}

	fmt.Printf("Kaiwa session %s @ %s\n", r.components.ConversationID, r.endpoint)
	fmt.Println("Type a message, or '/help' for commands. '/exit' quits.")

	r.signals.Start()
	defer r.signals.Stop()

	for {
		select {
		case <-r.signals.Done():
			return nil
		default:
			if err := r.readLine(); err != nil {
				if err == io.EOF {
					return nil
				}
				continue
			}
		}
	}
}

func (r *REPL) readLine() error {
	fmt.Print("> ")
	text, err := r.reader.ReadString('\n')
	if err != nil {
		return err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if strings.HasPrefix(text, "/") {
		return r.execute(text)
	}

	if err := r.components.Store.SendMessage(text); err != nil {
		fmt.Println(r.renderer.ErrorLine(err.Error()))
	}
	return nil
}

func (r *REPL) execute(input string) error {
	parts, parseErr := shlex.Split(input)
	if parseErr != nil {
		parts = strings.Fields(input)
	}
	if len(parts) == 0 {
		return nil
	}
	cmd := parts[0]
	args := parts[1:]

	store := r.components.Store

	var msg string
	var err error

	switch cmd {
	case "/exit", "/quit":
		return io.EOF
	case "/help":
		msg = helpText()
	case "/status":
		msg = r.renderer.Status(store.Snapshot())
	case "/files":
		msg = r.renderer.Files(store.Snapshot().Files)
	case "/history":
		msg = r.renderer.History(store.TerminalHistory())
	case "/cat":
		msg, err = r.handleCat(args)
	case "/run":
		msg, err = r.handleRun(args)
	case "/read":
		msg, err = r.handleRead(args)
	case "/write":
		msg, err = r.handleWrite(args)
	case "/edit":
		msg, err = r.handleEdit(args)
	case "/browse":
		msg, err = r.handleBrowse(args)
	case "/act":
		msg, err = r.handleAct(args)
	default:
		msg = fmt.Sprintf("Unknown command: %s (try /help)", cmd)
	}

	if err != nil {
		msg = r.renderer.ErrorLine(err.Error())
	}
	if msg != "" {
		fmt.Println(msg)
	}
	return nil
}

func (r *REPL) handleRun(args []string) (string, error) {
	if len(args) < 1 {
		return "Usage: /run <command>", nil
	}
	return "", r.components.Store.ExecuteCommand(strings.Join(args, " "))
}

func (r *REPL) handleRead(args []string) (string, error) {
	if len(args) != 1 {
		return "Usage: /read <path>", nil
	}
	return "", r.components.Store.ReadFile(args[0])
}

func (r *REPL) handleWrite(args []string) (string, error) {
	if len(args) < 2 {
		return "Usage: /write <path> <content>", nil
	}
	return "", r.components.Store.WriteFile(args[0], strings.Join(args[1:], " "))
}

func (r *REPL) handleEdit(args []string) (string, error) {
	if len(args) != 3 {
		return `Usage: /edit <path> "<old>" "<new>"`, nil
	}
	return "", r.components.Store.EditFile(args[0], args[1], args[2])
}

func (r *REPL) handleBrowse(args []string) (string, error) {
	if len(args) != 1 {
		return "Usage: /browse <url>", nil
	}
	return "", r.components.Store.BrowseURL(args[0])
}

func (r *REPL) handleAct(args []string) (string, error) {
	if len(args) < 1 {
		return "Usage: /act <browser script>", nil
	}
	return "", r.components.Store.BrowseInteractive(strings.Join(args, " "))
}

func (r *REPL) handleCat(args []string) (string, error) {
	if len(args) != 1 {
		return "Usage: /cat <path>", nil
	}
	content, ok := r.components.Store.FileContent(args[0])
	if !ok {
		return fmt.Sprintf("No cached copy of %s; try /read %s first", args[0], args[0]), nil
	}
	return content, nil
}

// printChanges renders store notifications until the subscription closes.
// User-authored timeline entries are skipped; the user just typed them.
func (r *REPL) printChanges(changes <-chan session.Change) {
	for change := range changes {
		switch change.Kind {
		case session.ChangeMessage:
			if change.Message == nil || change.Message.IsFromUser() {
				continue
			}
			fmt.Println(r.renderer.Message(*change.Message))
		case session.ChangeState:
			fmt.Println(r.renderer.StateLine(change.State))
		case session.ChangeFlags:
			fmt.Println(r.renderer.FlagsLine(change.Flags))
		case session.ChangeError:
			if change.Err == "" {
				continue
			}
			fmt.Println(r.renderer.ErrorLine(change.Err))
		}
	}
}

func helpText() string {
	return strings.TrimSpace(`
Commands:
  /run <command>             ask the agent to execute a shell command
  /read <path>               ask the agent to read a file
  /write <path> <content>    ask the agent to write a file
  /edit <path> "<old>" "<new>"  ask the agent to rewrite part of a file
  /browse <url>              ask the agent to open a page
  /act <script>              ask the agent to run a browser script
  /cat <path>                print the cached copy of a file
  /files                     list files the session has touched
  /history                   show commands the agent has run
  /status                    show connection state and flags
  /help                      this text
  /exit                      quit
`)
}
