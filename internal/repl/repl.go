// Package repl implements an interactive, liner-backed client that
// speaks nosqld's wire protocol (C10) over a plain TCP connection, one
// connection per command (the protocol closes the socket after every
// response).
package repl

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/peterh/liner"
)

// Client dials addr fresh for every command, mirroring the protocol's
// one-shot-connection contract.
type Client struct {
	Addr    string
	Timeout time.Duration
}

// Do sends a single request and returns the parsed status code and body.
func (c Client) Do(method, path, body string) (int, string, error) {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	conn, err := net.DialTimeout("tcp", c.Addr, timeout)
	if err != nil {
		return 0, "", fmt.Errorf("repl: dial %s: %w", c.Addr, err)
	}
	defer conn.Close()

	fmt.Fprintf(conn, "%s /%s HTTP/1.1\r\nHost: nosqld\r\n\r\n%s", method, path, body)
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	}

	r := bufio.NewReader(conn)
	statusLine, err := r.ReadString('\n')
	if err != nil {
		return 0, "", fmt.Errorf("repl: reading status line: %w", err)
	}

	var code int
	if _, err := fmt.Sscanf(statusLine, "HTTP/1.1 %d", &code); err != nil {
		return 0, "", fmt.Errorf("repl: parsing status line %q: %w", statusLine, err)
	}

	for {
		line, err := r.ReadString('\n')
		if err != nil || strings.TrimRight(line, "\r\n") == "" {
			break
		}
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return code, "", fmt.Errorf("repl: reading body: %w", err)
	}
	return code, buf.String(), nil
}

// Run drives an interactive liner session against a Client until the
// user quits or input is exhausted.
func Run(client Client, historyPath string) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(completer)

	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			_, _ = line.ReadHistory(f)
			f.Close()
		}
	}

	fmt.Printf("connected to %s — type 'help' for commands\n", client.Addr)

	for {
		input, err := line.Prompt("nosqld> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				break
			}
			return fmt.Errorf("repl: prompt: %w", err)
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if quit := dispatch(client, input); quit {
			break
		}
	}

	if historyPath != "" {
		if err := os.MkdirAll(filepath.Dir(historyPath), 0o755); err == nil {
			if f, err := os.Create(historyPath); err == nil {
				_, _ = line.WriteHistory(f)
				f.Close()
			}
		}
	}

	return nil
}

func completer(line string) []string {
	verbs := []string{"has", "get", "set", "del", "backup", "restore", "help", "exit", "quit"}
	var out []string
	for _, v := range verbs {
		if strings.HasPrefix(v, line) {
			out = append(out, v)
		}
	}
	return out
}

// dispatch runs a single REPL line and reports whether the session should
// end.
func dispatch(client Client, input string) bool {
	fields := strings.Fields(input)
	cmd := fields[0]

	switch cmd {
	case "exit", "quit", "q":
		return true

	case "help":
		printHelp()
		return false

	case "has":
		if len(fields) != 2 {
			fmt.Println("usage: has <key>")
			return false
		}
		code, _, err := client.Do("HEAD", "nosql/"+fields[1], "")
		report(code, "", err)

	case "get":
		if len(fields) != 2 {
			fmt.Println("usage: get <key>")
			return false
		}
		code, body, err := client.Do("GET", "nosql/"+fields[1], "")
		report(code, body, err)

	case "set":
		if len(fields) < 3 {
			fmt.Println("usage: set <key> <value>")
			return false
		}
		value := strings.Join(fields[2:], " ")
		code, _, err := client.Do("POST", "nosql/"+fields[1], value)
		report(code, "", err)

	case "del":
		if len(fields) != 2 {
			fmt.Println("usage: del <key>")
			return false
		}
		code, _, err := client.Do("DELETE", "nosql/"+fields[1], "")
		report(code, "", err)

	case "backup":
		if len(fields) != 2 {
			fmt.Println("usage: backup <path>")
			return false
		}
		code, _, err := client.Do("POST", "snapshot/backup", fields[1])
		report(code, "", err)

	case "restore":
		if len(fields) != 2 {
			fmt.Println("usage: restore <path>")
			return false
		}
		code, _, err := client.Do("POST", "snapshot/restore", fields[1])
		report(code, "", err)

	default:
		fmt.Printf("unknown command %q — type 'help'\n", cmd)
	}

	return false
}

func report(code int, body string, err error) {
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	if body != "" {
		fmt.Printf("%d %s\n", code, body)
		return
	}
	fmt.Println(code)
}

func printHelp() {
	fmt.Print(`commands:
  has <key>              membership check
  get <key>              fetch a value
  set <key> <value>      store a value
  del <key>              remove a key
  backup <path>          snapshot the arena to path
  restore <path>         load the arena from path
  help                   show this text
  exit / quit / q        leave the session
`)
}
