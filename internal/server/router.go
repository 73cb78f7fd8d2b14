// Package server implements the TCP line protocol in front of a record store.
package server

import (
	"bufio"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-records/internal/metrics"
	"github.com/celerix-dev/celerix-records/pkg/engine"
	"github.com/celerix-dev/celerix-records/pkg/schema"
	"github.com/celerix-dev/celerix-records/pkg/sdk"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MaxConnections bounds concurrently served connections.
const MaxConnections = 100

var errAuthRequired = fmt.Errorf("%w: AUTH required", engine.ErrNotAuthorized)

type Router struct {
	host *engine.Host
	cert *tls.Certificate
	log  logrus.FieldLogger

	mu       sync.Mutex
	listener net.Listener
}

func NewRouter(host *engine.Host, log logrus.FieldLogger) *Router {
	return &Router{host: host, log: log}
}

// SetCertificate sets the TLS certificate for the router
func (r *Router) SetCertificate(cert tls.Certificate) {
	r.cert = &cert
}

// Addr returns the bound address, or nil before Listen has bound.
func (r *Router) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Stop closes the listener; Listen then returns nil.
func (r *Router) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Close()
}

// Listen starts the TCP server. Port "0" binds an ephemeral port.
func (r *Router) Listen(port string) error {
	var listener net.Listener
	var err error

	if r.cert != nil {
		config := &tls.Config{Certificates: []tls.Certificate{*r.cert}}
		listener, err = tls.Listen("tcp", ":"+port, config)
	} else {
		listener, err = net.Listen("tcp", ":"+port)
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.listener = listener
	r.mu.Unlock()
	defer listener.Close()

	semaphore := make(chan struct{}, MaxConnections)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			continue
		}

		// Aggressive timeouts for light traffic to prevent resource exhaustion
		conn.SetDeadline(time.Now().Add(5 * time.Minute))

		go func(c net.Conn) {
			semaphore <- struct{}{}
			defer func() {
				<-semaphore
				c.Close()
			}()
			r.handleConnection(c)
		}(conn)
	}
}

// connState is the per-connection execution context.
type connState struct {
	caller  schema.Principal
	session *engine.Session
}

func (r *Router) handleConnection(conn net.Conn) {
	log := r.log.WithFields(logrus.Fields{
		"conn_id": uuid.NewString(),
		"remote":  conn.RemoteAddr().String(),
	})
	log.Debug("connection opened")
	metrics.ConnectionOpened()
	defer func() {
		metrics.ConnectionClosed()
		log.Debug("connection closed")
	}()

	state := &connState{session: r.host.As("")}
	reader := bufio.NewReader(conn)

	for {
		// Set a deadline for the next command
		conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		line, err := reader.ReadString('\n')
		if err != nil {
			return // Connection closed or timeout
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		command, arg, _ := strings.Cut(line, " ")
		command = strings.ToUpper(command)
		arg = strings.TrimSpace(arg)

		switch command {
		case sdk.CmdPing:
			fmt.Fprintln(conn, "PONG")
			continue
		case sdk.CmdQuit:
			return
		}

		payload, err := r.exec(state, command, arg)
		metrics.ObserveCommand(command, err)
		if err != nil {
			log.WithError(err).WithField("command", command).Debug("command rejected")
			fmt.Fprintln(conn, sdk.FormatError(err))
			continue
		}
		if payload == nil {
			fmt.Fprintln(conn, "OK")
			continue
		}
		res, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintln(conn, "ERR 0 internal error")
			continue
		}
		fmt.Fprintln(conn, "OK", string(res))
	}
}

// exec runs one command. A nil payload is answered with a bare OK.
func (r *Router) exec(state *connState, command, arg string) (any, error) {
	switch command {
	case sdk.CmdAuth:
		if arg == "" || strings.ContainsAny(arg, " \t") {
			return nil, fmt.Errorf("usage: AUTH <principal>")
		}
		state.caller = schema.Principal(arg)
		state.session = r.host.As(state.caller)
		return nil, nil

	case sdk.CmdStore:
		if state.caller == "" {
			return nil, errAuthRequired
		}
		var req schema.NewRecord
		if err := json.Unmarshal([]byte(arg), &req); err != nil {
			return nil, fmt.Errorf("invalid json value: %v", err)
		}
		return state.session.StoreRecord(req)

	case sdk.CmdGet:
		id, err := parseID(arg)
		if err != nil {
			return nil, err
		}
		return r.host.Store().GetRecord(id), nil

	case sdk.CmdGetHash:
		hash, err := parseHash(arg)
		if err != nil {
			return nil, err
		}
		return r.host.Store().GetRecordByHash(hash), nil

	case sdk.CmdMeta:
		id, err := parseID(arg)
		if err != nil {
			return nil, err
		}
		return r.host.Store().GetRecordMetadata(id), nil

	case sdk.CmdRegistered:
		hash, err := parseHash(arg)
		if err != nil {
			return nil, err
		}
		return r.host.Store().IsRecordRegistered(hash), nil

	case sdk.CmdCount:
		return r.host.Store().GetRecordCount(), nil

	case sdk.CmdUpdate:
		if state.caller == "" {
			return nil, errAuthRequired
		}
		idStr, body, _ := strings.Cut(arg, " ")
		id, err := parseID(idStr)
		if err != nil {
			return nil, err
		}
		var upd schema.MetadataUpdate
		if err := json.Unmarshal([]byte(body), &upd); err != nil {
			return nil, fmt.Errorf("invalid json value: %v", err)
		}
		return nil, state.session.UpdateRecordMetadata(id, upd)

	case sdk.CmdTouch:
		// Access tracking is caller-agnostic.
		id, err := parseID(arg)
		if err != nil {
			return nil, err
		}
		return nil, state.session.IncrementAccessCount(id)

	case sdk.CmdSetAuthority:
		if state.caller == "" {
			return nil, errAuthRequired
		}
		return nil, state.session.SetAuthorityContract(schema.Principal(arg))

	case sdk.CmdAuthority:
		p, ok := r.host.Store().GetAuthorityContract()
		return sdk.AuthorityReply{Principal: string(p), Set: ok}, nil

	case sdk.CmdHeight:
		return r.host.Height(), nil
	}
	return nil, fmt.Errorf("unknown command %s", command)
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid record id %q", s)
	}
	return id, nil
}

func parseHash(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex hash %q", s)
	}
	return b, nil
}
