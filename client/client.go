// Package client implements the interactive REPL: line editing and history
// via liner, a handful of control tokens, and a TCP connection that
// reconnects with backoff if the server goes away.
package client

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/clstatham/veris/internal/backoff"
	"github.com/clstatham/veris/internal/dblog"
	"github.com/clstatham/veris/internal/presentation"
	netproto "github.com/clstatham/veris/net"
)

// Config controls how a Client connects and what it persists between runs.
type Config struct {
	Addr                 string
	HistoryPath          string
	ConnectTimeout       time.Duration
	MaxReconnectAttempts int
}

// Client drives the REPL loop against a single server address, reconnecting
// transparently on a dropped connection.
type Client struct {
	config Config
	log    *dblog.Logger
	stdout io.Writer
}

// New returns a Client ready to Loop once Connect succeeds.
func New(config Config, log *dblog.Logger, stdout io.Writer) *Client {
	return &Client{config: config, log: log, stdout: stdout}
}

// Connect dials the server, retrying with exponential backoff until it
// succeeds or MaxReconnectAttempts is exhausted.
func (c *Client) Connect() (net.Conn, error) {
	var lastErr error
	for attempt := 0; c.config.MaxReconnectAttempts <= 0 || attempt < c.config.MaxReconnectAttempts; attempt++ {
		conn, err := net.DialTimeout("tcp", c.config.Addr, c.config.ConnectTimeout)
		if err == nil {
			if tcp, ok := conn.(*net.TCPConn); ok {
				_ = tcp.SetNoDelay(true)
			}
			c.log.Infof("connected to server at %s", c.config.Addr)
			return conn, nil
		}
		lastErr = err
		c.log.Warnf("failed to connect to server: %v", err)
		if attempt == 0 {
			continue
		}
		time.Sleep(backoff.Duration(200*time.Millisecond, 10*time.Second, attempt))
	}
	return nil, lastErr
}

// Loop runs the REPL until the user quits, EOF is reached on stdin, or the
// connection is lost beyond the configured number of reconnect attempts.
func (c *Client) Loop() error {
	conn, err := c.Connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	c.loadHistory(line)
	defer c.saveHistory(line)

	reader := bufio.NewReader(conn)

	for {
		input, err := line.Prompt(">>> ")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if input == ".q" {
			return nil
		}

		conn, reader, err = c.handleLine(conn, reader, input)
		if err != nil {
			if isConnectionLost(err) {
				c.log.Warnf("server closed connection, reconnecting")
				conn, err = c.Connect()
				if err != nil {
					return err
				}
				reader = bufio.NewReader(conn)
				continue
			}
			presentation.Error(c.stdout, err)
		}
	}
}

func (c *Client) handleLine(conn net.Conn, reader *bufio.Reader, input string) (net.Conn, *bufio.Reader, error) {
	var req netproto.Request
	switch {
	case strings.HasPrefix(input, ".x "):
		path := strings.TrimSpace(strings.TrimPrefix(input, ".x "))
		contents, err := os.ReadFile(path)
		if err != nil {
			return conn, reader, err
		}
		req = netproto.NewExecuteRequest(string(contents))

	case strings.HasPrefix(input, ".?") || strings.HasPrefix(input, "?"):
		req = netproto.NewDebugRequest(strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(input, "."), "?")))

	default:
		req = netproto.NewExecuteRequest(input)
	}

	if err := c.send(conn, req); err != nil {
		return conn, reader, err
	}

	resp, err := c.receive(reader)
	if err != nil {
		return conn, reader, err
	}

	c.present(resp)
	return conn, reader, nil
}

func (c *Client) send(conn net.Conn, req netproto.Request) error {
	b, err := netproto.Encode(req)
	if err != nil {
		return err
	}
	_, err = conn.Write(b)
	return err
}

func (c *Client) receive(reader *bufio.Reader) (netproto.Response, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		return netproto.Response{}, err
	}
	var resp netproto.Response
	if err := json.Unmarshal([]byte(line), &resp); err != nil {
		return netproto.Response{}, err
	}
	return resp, nil
}

func (c *Client) present(resp netproto.Response) {
	switch resp.Kind {
	case netproto.ResponseDebug:
		_, _ = io.WriteString(c.stdout, resp.Plan+"\n")
	case netproto.ResponseError:
		_ = presentation.Error(c.stdout, errors.New(resp.Error))
	case netproto.ResponseExecute:
		for _, outcome := range resp.Results {
			_, _ = io.WriteString(c.stdout, outcome.Statement+"\n")
			_ = presentation.Outcome(c.stdout, outcome)
		}
	}
}

func isConnectionLost(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		strings.Contains(err.Error(), "connection reset") ||
		strings.Contains(err.Error(), "broken pipe")
}

func (c *Client) loadHistory(line *liner.State) {
	if c.config.HistoryPath == "" {
		return
	}
	if f, err := os.Open(c.config.HistoryPath); err == nil {
		defer f.Close()
		_, _ = line.ReadHistory(f)
	}
}

func (c *Client) saveHistory(line *liner.State) {
	if c.config.HistoryPath == "" {
		return
	}
	if f, err := os.Create(c.config.HistoryPath); err == nil {
		defer f.Close()
		_, _ = line.WriteHistory(f)
	}
}
