// Package sdk provides the client-side library for interacting with the record store.
// It supports both remote connections via TCP/TLS and local embedded mode.
package sdk

import (
	"bufio"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-records/pkg/schema"
	"github.com/sirupsen/logrus"
)

// DialOptions controls how Connect reaches the daemon.
type DialOptions struct {
	// DisableTLS falls back to plain TCP.
	DisableTLS bool
	// Logger receives reconnect warnings. Defaults to the logrus standard logger.
	Logger logrus.FieldLogger
}

// Client is a remote client for the record store, bound to one caller.
// It implements the RecordStore interface.
type Client struct {
	addr   string
	caller schema.Principal
	opts   DialOptions

	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex // Protects concurrent access to the connection
}

var _ RecordStore = (*Client)(nil)

// Connect establishes a connection to a remote record store daemon and
// authenticates as caller. An empty caller gives a read-only client.
func Connect(addr string, caller schema.Principal, opts DialOptions) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	c := &Client{addr: addr, caller: caller, opts: opts}
	if err := c.reconnect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) reconnect() error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	var conn net.Conn
	var err error

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 60 * time.Second,
	}

	if c.opts.DisableTLS {
		conn, err = dialer.Dial("tcp", c.addr)
	} else {
		config := &tls.Config{
			InsecureSkipVerify: true, // The daemon uses self-signed certs for internal traffic
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", c.addr, config)
	}
	if err != nil {
		return err
	}

	reader := bufio.NewReader(conn)
	if c.caller != "" {
		conn.SetDeadline(time.Now().Add(30 * time.Second))
		if _, err := fmt.Fprintf(conn, "%s %s\n", CmdAuth, c.caller); err != nil {
			conn.Close()
			return err
		}
		resp, err := reader.ReadString('\n')
		if err != nil {
			conn.Close()
			return err
		}
		if resp = strings.TrimSpace(resp); resp != "OK" {
			conn.Close()
			return fmt.Errorf("auth rejected: %w", ParseError(resp))
		}
	}

	c.conn = conn
	c.reader = reader
	return nil
}

// sendAndReceive sends one command and returns the reply payload. Retries
// reconnect and resend; a command is only resent after a failure while
// reading its reply when retryable is true.
func (c *Client) sendAndReceive(cmd string, retryable bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	var resp string

	// Try up to 3 times with backoff
	for i := 0; i < 3; i++ {
		if c.conn == nil {
			if reconnectErr := c.reconnect(); reconnectErr != nil {
				err = fmt.Errorf("reconnect failed: %w", reconnectErr)
				time.Sleep(time.Duration(i*100) * time.Millisecond)
				continue
			}
		}

		c.conn.SetDeadline(time.Now().Add(30 * time.Second))

		_, err = fmt.Fprint(c.conn, cmd+"\n")
		if err == nil {
			resp, err = c.reader.ReadString('\n')
			if err == nil {
				resp = strings.TrimSpace(resp)
				if strings.HasPrefix(resp, "ERR") {
					return "", ParseError(resp)
				}
				return strings.TrimSpace(strings.TrimPrefix(resp, "OK")), nil
			}
			if !retryable {
				c.conn.Close()
				c.conn = nil
				return "", fmt.Errorf("reply lost, command may have been applied: %w", err)
			}
		}

		c.opts.Logger.WithError(err).WithField("attempt", i+1).Warn("record store request failed, reconnecting")

		// Force a reconnect on the next iteration
		if closeErr := c.reconnect(); closeErr != nil {
			c.opts.Logger.WithError(closeErr).Warn("reconnect attempt failed")
		}

		time.Sleep(time.Duration((i+1)*200) * time.Millisecond)
	}

	return "", fmt.Errorf("failed after 3 attempts. last error: %v", err)
}

func (c *Client) query(cmd string, out any) error {
	payload, err := c.sendAndReceive(cmd, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("decode %s reply: %w", strings.Fields(cmd)[0], err)
	}
	return nil
}

func (c *Client) StoreRecord(req schema.NewRecord) (uint64, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return 0, err
	}
	payload, err := c.sendAndReceive(fmt.Sprintf("%s %s", CmdStore, body), false)
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(payload, 10, 64)
}

func (c *Client) UpdateRecordMetadata(id uint64, upd schema.MetadataUpdate) error {
	body, err := json.Marshal(upd)
	if err != nil {
		return err
	}
	// Updates are idempotent: replaying one writes the same values.
	_, err = c.sendAndReceive(fmt.Sprintf("%s %d %s", CmdUpdate, id, body), true)
	return err
}

func (c *Client) IncrementAccessCount(id uint64) error {
	_, err := c.sendAndReceive(fmt.Sprintf("%s %d", CmdTouch, id), false)
	return err
}

func (c *Client) GetRecord(id uint64) (*schema.Record, error) {
	var rec *schema.Record
	err := c.query(fmt.Sprintf("%s %d", CmdGet, id), &rec)
	return rec, err
}

func (c *Client) GetRecordByHash(hash []byte) (*schema.Record, error) {
	var rec *schema.Record
	err := c.query(fmt.Sprintf("%s %s", CmdGetHash, hex.EncodeToString(hash)), &rec)
	return rec, err
}

func (c *Client) GetRecordMetadata(id uint64) (*schema.Metadata, error) {
	var meta *schema.Metadata
	err := c.query(fmt.Sprintf("%s %d", CmdMeta, id), &meta)
	return meta, err
}

func (c *Client) IsRecordRegistered(hash []byte) (bool, error) {
	var ok bool
	err := c.query(fmt.Sprintf("%s %s", CmdRegistered, hex.EncodeToString(hash)), &ok)
	return ok, err
}

func (c *Client) GetRecordCount() (uint64, error) {
	var n uint64
	err := c.query(CmdCount, &n)
	return n, err
}

func (c *Client) SetAuthorityContract(p schema.Principal) error {
	_, err := c.sendAndReceive(fmt.Sprintf("%s %s", CmdSetAuthority, p), false)
	return err
}

func (c *Client) GetAuthorityContract() (schema.Principal, bool, error) {
	var out AuthorityReply
	if err := c.query(CmdAuthority, &out); err != nil {
		return "", false, err
	}
	return schema.Principal(out.Principal), out.Set, nil
}

func (c *Client) Height() (uint64, error) {
	var h uint64
	err := c.query(CmdHeight, &h)
	return h, err
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	fmt.Fprintln(c.conn, CmdQuit)
	err := c.conn.Close()
	c.conn = nil
	return err
}
