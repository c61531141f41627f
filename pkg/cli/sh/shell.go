// Package sh provides the interactive host shell talking to the USB
// command endpoint of a simulated half.
package sh

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/ghostkb/pkg/usb"
)

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool
	URL         string

	Shell  *ishell.Shell
	Client *usb.Client
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool
	usbURL     = "ws://localhost:8880/"

	// commands
	commands = []*ishell.Cmd{
		&ConnectCmd,
		&DisconnectCmd,
		&PingCmd,
	}
)

func init() {
	if val := os.Getenv("GHOSTKB_USB_URL"); val != "" {
		usbURL = val
	}
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.StringVar(&usbURL, "url", usbURL, "USB command endpoint of the keyboard.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(url string) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		URL:         url,

		Shell: ishell.New(),
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Client == nil {
			c.Err(fmt.Errorf("not connected"))
			return
		}
		fn(c)
	}
}

type replyJSON struct {
	Command string `json:"command"`
	Result  string `json:"result"`
	Message string `json:"message,omitempty"`
}

// ReplyString describes the status reply of a command.
func ReplyString(reply usb.Command) string {
	switch reply.Value {
	case usb.ReplyAccepted:
		return "OK"
	case usb.ReplyBusy:
		return "BUSY"
	case usb.ReplyRejected:
		return "REJECTED"
	}
	return fmt.Sprintf("UNKNOWN(%d)", reply.Value)
}

// DoCommand sends a command and prints the reply.
func DoCommand(c *ishell.Context, cmd usb.Command) error {
	s := ShellFrom(c)
	if s.Client == nil {
		err := fmt.Errorf("not connected")
		c.Err(err)
		return err
	}
	reply, err := s.Client.Send(cmd)
	if err != nil {
		c.Err(err)
		return err
	}
	if s.OutputJSON {
		out, err := json.Marshal(&replyJSON{
			Command: cmd.Kind.String(),
			Result:  ReplyString(reply),
			Message: string(reply.Data),
		})
		if err != nil {
			c.Err(err)
			return err
		}
		c.Println(string(out))
		return nil
	}
	if len(reply.Data) > 0 {
		c.Printf("%s: %s\n", ReplyString(reply), string(reply.Data))
	} else {
		c.Println(ReplyString(reply))
	}
	return nil
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// Connect connects to the USB endpoint at url.
func (s *Shell) Connect(url string) error {
	client, err := usb.Dial(url)
	if err != nil {
		return err
	}
	s.Disconnect()
	s.Client, s.URL = client, url
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", url))
	return nil
}

// Disconnect closes the current connection.
func (s *Shell) Disconnect() {
	if s.Client != nil {
		s.Client.Close()
		s.Client = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoConnect && s.URL != "" {
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.URL)
		}
		if err := s.Connect(s.URL); err != nil {
			log.Fatalf("connect %q failed: %v", s.URL, err)
		}
	}
	defer s.Disconnect()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// ConnectCmd connects a keyboard.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[URL]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			url := s.URL
			if len(c.Args) > 0 {
				url = c.Args[0]
			}
			if url == "" {
				c.Err(fmt.Errorf("URL required"))
				return
			}
			if err := s.Connect(url); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects current keyboard.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// PingCmd sends an unreliable ping through both halves.
	PingCmd = ishell.Cmd{
		Name:    "ping",
		Aliases: []string{"p"},
		Help:    "",
		Func: MustBeConnected(func(c *ishell.Context) {
			DoCommand(c, usb.Command{Kind: usb.KindPing})
		}),
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(usbURL).WithAutoConnect(true).Run(flag.Args()...)
}
