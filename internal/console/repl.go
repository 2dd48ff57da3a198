package console

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// Controls is what the console drives.
type Controls interface {
	Select(userID int)
	Back()
	LoadOlder()
	Search(term string)
	Send(text string)
}

const help = `commands:
  /users            list users
  /open <id|name>   open a conversation
  /older            load older messages
  /back             close the conversation
  /search <term>    filter the user list
  /quit             exit
anything else is sent to the open conversation`

// Run reads commands from in until it is exhausted, /quit is entered or ctx ends.
func (c *Console) Run(ctx context.Context, in io.Reader, ctl Controls) error {
	lines := make(chan string)
	errs := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errs <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			return err
		case line := <-lines:
			if quit := c.dispatch(line, ctl); quit {
				return nil
			}
		}
	}
}

func (c *Console) dispatch(line string, ctl Controls) (quit bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		ctl.Send(line)
		return false
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/users":
		c.printRoster()
	case "/open":
		u, ok := c.lookup(arg)
		if !ok {
			c.ShowNotice("no such user: " + arg)
			return false
		}
		ctl.Select(u.ID)
	case "/older":
		ctl.LoadOlder()
	case "/back":
		ctl.Back()
	case "/search":
		ctl.Search(arg)
	case "/quit", "/exit":
		return true
	case "/help":
		c.mu.Lock()
		c.printf("%s", help)
		c.mu.Unlock()
	default:
		c.ShowNotice("unknown command " + cmd + ", try /help")
	}
	return false
}
