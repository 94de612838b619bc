package singleinstance

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

type tcpClient struct{}

func newTcpClient() Client { return &tcpClient{} }

func (c *tcpClient) TryOpen(ctx context.Context, req Request) (bool, error) {
	deadline := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			deadline = d
		}
	}
	line := focusRequest
	if p := strings.TrimSpace(req.Path); p != "" {
		if strings.ContainsAny(p, "\r\n") {
			return false, errors.New("path contains a line break")
		}
		line = openPrefix + p + "\n"
	}

	start, end := getPortRange()
	for port := start; port <= end; port++ {
		addr := net.JoinHostPort(residentHost, strconv.Itoa(port))
		if !ping(addr, deadline) {
			continue
		}
		conn, err := net.DialTimeout("tcp", addr, deadline)
		if err != nil {
			continue
		}
		return true, exchange(conn, line, deadline)
	}
	return false, nil
}

func ping(addr string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))
	if _, err := io.WriteString(conn, pingRequest); err != nil {
		return false
	}
	resp, err := bufio.NewReader(conn).ReadString('\n')
	return err == nil && resp == pongResponse
}

func exchange(conn net.Conn, line string, timeout time.Duration) error {
	defer conn.Close()
	// The resident may be busy on its event loop; allow it the full answer window.
	_ = conn.SetDeadline(time.Now().Add(timeout + 10*time.Second))
	w := bufio.NewWriter(conn)
	if _, err := w.WriteString(line); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	br := bufio.NewReader(conn)
	status, err := br.ReadString('\n')
	if err != nil {
		return err
	}
	switch status {
	case "SUCCESS\n":
		return nil
	case "ERROR\n":
		msg, _ := io.ReadAll(br)
		return errors.New(string(msg))
	default:
		return errors.New("unexpected response from resident editor")
	}
}
