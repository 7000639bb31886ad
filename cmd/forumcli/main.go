// forumcli is the interactive client. It drives the login handshake, then
// reads commands from stdin until XIT:
//
//	CRT <title> | LST | MSG <title> <text> | DLT <title> <index>
//	RDT <title> | EDT <title> <index> <text> | UPD <title> <file>
//	DWN <title> <file> | RMV <title> | XIT
package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/forumd-dev/forumd/internal/client"
	"github.com/forumd-dev/forumd/internal/config"
	"github.com/forumd-dev/forumd/internal/logger"
	"github.com/forumd-dev/forumd/internal/protocol"
)

func main() {
	logger.Initialize("warn", false)

	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: forumcli <port>")
		os.Exit(2)
	}
	port, err := strconv.Atoi(os.Args[1])
	if err != nil || !config.ValidPort(port) {
		fmt.Fprintln(os.Stderr, "port must be a number between 1024 and 65535")
		os.Exit(2)
	}

	c, err := client.Dial(fmt.Sprintf("localhost:%d", port), 5*time.Second, 3)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer c.Close()

	stdin := bufio.NewScanner(os.Stdin)
	if err := login(c, stdin); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("Welcome to the forum")

	repl(c, stdin)
}

func prompt(stdin *bufio.Scanner, label string) (string, error) {
	fmt.Print(label)
	if !stdin.Scan() {
		return "", errors.New("stdin closed")
	}
	return strings.TrimSpace(stdin.Text()), nil
}

func login(c *client.Client, stdin *bufio.Scanner) error {
	for {
		username, err := prompt(stdin, "Enter username: ")
		if err != nil {
			return err
		}
		resp, err := c.Probe(username)
		if err != nil {
			return err
		}

		var passLabel string
		switch resp.Type {
		case protocol.TypeOnline:
			fmt.Printf("%s has already logged in\n", username)
			continue
		case protocol.TypeNewUser:
			passLabel = "New user, enter password: "
		default:
			passLabel = "Enter password: "
		}

		password, err := prompt(stdin, passLabel)
		if err != nil {
			return err
		}
		resp, err = c.Login(username, password)
		if err != nil {
			return err
		}
		switch resp.Status {
		case protocol.StatusOK:
			return nil
		case protocol.StatusError:
			fmt.Printf("%s has already logged in\n", username)
		default:
			fmt.Println("Invalid password")
		}
	}
}

func repl(c *client.Client, stdin *bufio.Scanner) {
	for {
		line, err := prompt(stdin, "Enter one of the following commands: CRT, MSG, DLT, EDT, LST, RDT, UPD, DWN, RMV, XIT: ")
		if err != nil {
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		done, err := runCommand(c, fields)
		if err != nil {
			fmt.Println(err)
			if errors.Is(err, client.ErrTimeoutExhausted) {
				fmt.Println("Server unreachable, giving up")
				return
			}
		}
		if done {
			return
		}
	}
}

// runCommand executes one REPL line; done reports that the session ended.
func runCommand(c *client.Client, fields []string) (done bool, err error) {
	cmd, args := strings.ToUpper(fields[0]), fields[1:]

	switch cmd {
	case "CRT":
		if len(args) != 1 {
			return false, errors.New("usage: CRT <title>")
		}
		resp, err := c.CreateThread(args[0])
		if err != nil {
			return false, err
		}
		if resp.Status == protocol.StatusOK {
			fmt.Printf("Thread %s created\n", args[0])
		} else {
			fmt.Printf("Thread %s exists\n", args[0])
		}

	case "LST":
		resp, err := c.ListThreads()
		if err != nil {
			return false, err
		}
		if resp.Status == protocol.StatusEmpty {
			fmt.Println("No threads to list")
		} else {
			for _, title := range resp.Threads {
				fmt.Println(title)
			}
		}

	case "MSG":
		if len(args) < 2 {
			return false, errors.New("usage: MSG <title> <text>")
		}
		resp, err := c.PostMessage(args[0], strings.Join(args[1:], " "))
		if err != nil {
			return false, err
		}
		printOutcome(resp, "Message posted", "Failed to post message")

	case "DLT":
		title, index, err := titleAndIndex(args, "DLT")
		if err != nil {
			return false, err
		}
		resp, err := c.DeleteMessage(title, index)
		if err != nil {
			return false, err
		}
		printOutcome(resp, "Message deleted", "Failed to delete message")

	case "RDT":
		if len(args) != 1 {
			return false, errors.New("usage: RDT <title>")
		}
		resp, err := c.ReadThread(args[0])
		if err != nil {
			return false, err
		}
		switch resp.Status {
		case protocol.StatusEmpty:
			fmt.Printf("Thread %s is empty\n", args[0])
		case protocol.StatusOK:
			for _, line := range resp.Messages {
				fmt.Println(line)
			}
		default:
			fmt.Println("Incorrect thread specified")
		}

	case "EDT":
		if len(args) < 3 {
			return false, errors.New("usage: EDT <title> <index> <text>")
		}
		title, index, err := titleAndIndex(args[:2], "EDT")
		if err != nil {
			return false, err
		}
		resp, err := c.EditMessage(title, index, strings.Join(args[2:], " "))
		if err != nil {
			return false, err
		}
		printOutcome(resp, "Message edited", "Failed to edit message")

	case "UPD":
		if len(args) != 2 {
			return false, errors.New("usage: UPD <title> <file>")
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return false, err
		}
		resp, err := c.Upload(args[0], args[1], data)
		if err != nil {
			return false, err
		}
		printOutcome(resp, fmt.Sprintf("%s uploaded to %s thread", args[1], args[0]), "Upload failed")

	case "DWN":
		if len(args) != 2 {
			return false, errors.New("usage: DWN <title> <file>")
		}
		data, err := c.Download(args[0], args[1])
		if err != nil {
			return false, err
		}
		if err := os.WriteFile(args[1], data, 0644); err != nil {
			return false, err
		}
		fmt.Printf("%s successfully downloaded\n", args[1])

	case "RMV":
		if len(args) != 1 {
			return false, errors.New("usage: RMV <title>")
		}
		resp, err := c.RemoveThread(args[0])
		if err != nil {
			return false, err
		}
		printOutcome(resp, "Thread removed", "Failed to remove thread")

	case "XIT":
		if _, err := c.Exit(); err != nil {
			return true, err
		}
		fmt.Println("Goodbye")
		return true, nil

	default:
		return false, fmt.Errorf("unknown command %s", cmd)
	}
	return false, nil
}

func titleAndIndex(args []string, cmd string) (string, int, error) {
	if len(args) != 2 {
		return "", 0, fmt.Errorf("usage: %s <title> <index> ...", cmd)
	}
	index, err := strconv.Atoi(args[1])
	if err != nil {
		return "", 0, fmt.Errorf("index must be a number")
	}
	return args[0], index, nil
}

func printOutcome(resp *protocol.Response, okMsg, failMsg string) {
	if resp.Status == protocol.StatusOK {
		fmt.Println(okMsg)
	} else {
		fmt.Printf("%s: %s\n", failMsg, resp.Status)
	}
}
