// Package server implements the TCP front end: one goroutine accepts
// connections, one goroutine per connection reads newline-delimited JSON
// requests and writes newline-delimited JSON responses.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/clstatham/veris/engine"
	"github.com/clstatham/veris/exec/plan"
	"github.com/clstatham/veris/exec/planner"
	"github.com/clstatham/veris/exec/session"
	"github.com/clstatham/veris/internal/dblog"
	netproto "github.com/clstatham/veris/net"
	"github.com/clstatham/veris/sql"
)

// Server accepts SQL connections against a single catalog engine.
type Server struct {
	addr     string
	engine   *engine.Engine
	log      *dblog.Logger
	listener net.Listener
}

// New returns a Server that will listen on addr once Listen is called.
func New(addr string, e *engine.Engine, log *dblog.Logger) *Server {
	return &Server{addr: addr, engine: e, log: log}
}

// Listen binds the server's listener, so Addr is valid and Serve can accept
// connections. Separated from Serve so callers (and tests) that need the
// actual bound address (e.g. after listening on ":0") can read it before
// the accept loop starts.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = listener
	s.log.Infof("listening on %s", listener.Addr())
	return nil
}

// Addr returns the server's bound address. Valid only after Listen succeeds.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until ctx is canceled or a SIGINT/SIGTERM
// arrives, whichever comes first. If Listen has not been called yet, Serve
// calls it first.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}
	defer s.listener.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- s.acceptLoop(ctx, s.listener) }()

	select {
	case <-ctx.Done():
		s.log.Infof("received shutdown signal")
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		connID := uuid.NewString()
		s.log.Infof("accepted connection %s from %s", connID, conn.RemoteAddr())
		go s.handleConn(connID, conn)
	}
}

func (s *Server) handleConn(connID string, conn net.Conn) {
	log := s.log.With(logrus.Fields{"conn": connID})
	defer func() {
		log.Infof("closing connection to %s", conn.RemoteAddr())
		conn.Close()
	}()

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	sess := session.New(s.engine)
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	writer := bufio.NewWriter(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req netproto.Request
		if err := json.Unmarshal(line, &req); err != nil {
			log.Errorf("failed to decode request: %v", err)
			continue
		}

		resp := s.processRequest(log, sess, req)
		if err := writeResponse(writer, resp); err != nil {
			log.Errorf("failed to write response: %v", err)
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Errorf("connection read error: %v", err)
	}
}

func writeResponse(w *bufio.Writer, resp netproto.Response) error {
	b, err := netproto.Encode(resp)
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	return w.Flush()
}

func (s *Server) processRequest(log *dblog.Logger, sess *session.Session, req netproto.Request) netproto.Response {
	switch req.Kind {
	case netproto.RequestDebug:
		stmt, err := sql.Parse(req.SQL)
		if err != nil {
			log.Errorf("failed to parse sql: %v", err)
			return netproto.NewErrorResponse(err)
		}
		rendered, err := s.explain(stmt)
		if err != nil {
			log.Errorf("failed to plan sql: %v", err)
			return netproto.NewErrorResponse(err)
		}
		return netproto.NewDebugResponse(rendered)

	case netproto.RequestExecute:
		stmts, err := sql.ParseStatements(req.SQL)
		if err != nil {
			log.Errorf("failed to parse sql: %v", err)
			return netproto.NewErrorResponse(err)
		}

		var results []netproto.StatementOutcome
		for _, stmt := range stmts {
			result, err := sess.Exec(stmt)
			if err != nil {
				log.Errorf("failed to execute statement: %v", err)
				results = append(results, netproto.ResultOutcome(describeStatement(stmt), session.ErrorResult(err)))
				return netproto.NewExecuteResponse(results)
			}
			results = append(results, netproto.ResultOutcome(describeStatement(stmt), result))
		}
		return netproto.NewExecuteResponse(results)

	default:
		return netproto.NewErrorResponse(fmt.Errorf("unknown request kind %q", req.Kind))
	}
}

// explain plans stmt against a throwaway read-only transaction and renders
// the resulting tree in EXPLAIN style, without ever executing it.
func (s *Server) explain(stmt sql.Statement) (string, error) {
	txn, err := s.engine.Begin(true)
	if err != nil {
		return "", err
	}
	defer txn.Rollback()

	node, err := planner.New(txn).Plan(stmt)
	if err != nil {
		return "", err
	}
	return plan.String(node), nil
}

// describeStatement labels a statement's outcome with the statement's Go AST
// type name (e.g. "*sql.SelectStatement"); the SQL source text of the
// statement is not kept.
func describeStatement(stmt sql.Statement) string {
	return fmt.Sprintf("%T", stmt)
}
