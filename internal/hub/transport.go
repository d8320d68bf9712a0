package hub

import (
	"bufio"
	"net"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/corvidnet/fedircd/internal/ircmsg"
)

// conn wraps a net.Conn with line buffering and a read/write deadline,
// grounded on the teacher's own Conn wrapper.
type conn struct {
	raw net.Conn
	rw  *bufio.ReadWriter

	ioWait time.Duration
	ip     net.IP

	log *logrus.Entry
}

func newConn(raw net.Conn, ioWait time.Duration, log *logrus.Entry) *conn {
	ip := net.IP{}
	if tcpAddr, ok := raw.RemoteAddr().(*net.TCPAddr); ok {
		ip = tcpAddr.IP
	}
	return &conn{
		raw:    raw,
		rw:     bufio.NewReadWriter(bufio.NewReader(raw), bufio.NewWriter(raw)),
		ioWait: ioWait,
		ip:     ip,
		log:    log,
	}
}

func (c *conn) Close() error {
	return c.raw.Close()
}

func (c *conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// readLine reads one CRLF-terminated line, including the terminator.
func (c *conn) readLine() (string, error) {
	if err := c.raw.SetReadDeadline(time.Now().Add(c.ioWait)); err != nil {
		return "", errors.Wrap(err, "transport: set read deadline")
	}
	line, err := c.rw.ReadString('\n')
	if err != nil {
		return "", err
	}
	return line, nil
}

func (c *conn) writeLine(s string) error {
	if err := c.raw.SetWriteDeadline(time.Now().Add(c.ioWait)); err != nil {
		return errors.Wrap(err, "transport: set write deadline")
	}
	if _, err := c.rw.WriteString(s); err != nil {
		return err
	}
	if err := c.rw.Flush(); err != nil {
		return errors.Wrap(err, "transport: flush")
	}
	c.log.WithField("line", strings.TrimRight(s, "\r\n")).Trace("transport: sent")
	return nil
}

func (c *conn) writeMessage(m ircmsg.Message) error {
	encoded, err := m.Encode()
	if err != nil {
		return errors.Wrap(err, "transport: encode")
	}
	return c.writeLine(encoded)
}
