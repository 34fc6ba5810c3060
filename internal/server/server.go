// Package server accepts client connections over TCP and WebSocket and
// feeds their commands into the running game session.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"coopadventure/internal/game"
	"coopadventure/internal/protocol"
	"coopadventure/internal/session"
)

// DefaultOutboxSize is the per-connection queue length used when
// OutboxSize is unset.
const DefaultOutboxSize = 64

const shutdownReason = "Server shutting down."

var errFinished = errors.New("server: game finished")

// Chronicler records a finished game. It returns where the record was
// written.
type Chronicler interface {
	Write(sum session.Summary) (string, error)
}

// Server hosts one game at a time on Story.
type Server struct {
	Story        *game.Story
	Addr         string
	WSAddr       string
	OutboxSize   int
	WriteTimeout time.Duration
	Session      session.Options
	// Chronicle, when set, is called with the summary of each finished game.
	Chronicle Chronicler
	// Rematch hosts a fresh game after one ends instead of stopping.
	Rematch bool

	mu    sync.Mutex
	sess  *session.Session
	conns sync.WaitGroup
}

// Run listens on Addr and serves until ctx is cancelled, or until the
// game ends when Rematch is off.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts TCP connections on ln. It closes ln before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.Story == nil {
		_ = ln.Close()
		return errors.New("server: story is required")
	}
	s.newSession()
	log.Printf("listening on %s (%q, %d players)", ln.Addr(), s.Story.Title, s.Story.MaxPlayers)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})
	g.Go(func() error { return s.accept(gctx, ln) })
	g.Go(func() error { return s.watch(gctx) })
	if s.WSAddr != "" {
		hs := &http.Server{Addr: s.WSAddr, Handler: s.Handler(gctx), ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			log.Printf("websocket listening on %s", s.WSAddr)
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("websocket listen %s: %w", s.WSAddr, err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	s.conns.Wait()
	if errors.Is(err, errFinished) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// Handler serves WebSocket clients on /ws. ctx bounds the connections it
// accepts.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		// Counted before the upgrade: Shutdown stops tracking the
		// request once it is hijacked.
		s.conns.Add(1)
		defer s.conns.Done()
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("websocket upgrade from %s: %v", r.RemoteAddr, err)
			return
		}
		s.ServeConn(ctx, NewWSConn(ws, s.WriteTimeout))
	})
	return mux
}

func (s *Server) accept(ctx context.Context, ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.ServeConn(ctx, NewTCPConn(c, s.WriteTimeout))
		}()
	}
}

// watch ends the game on shutdown and reacts to games ending on their own.
func (s *Server) watch(ctx context.Context) error {
	for {
		sess := s.current()
		select {
		case <-ctx.Done():
			sess.End(context.WithoutCancel(ctx), shutdownReason)
			s.chronicle(sess)
			return nil
		case <-sess.Done():
			s.chronicle(sess)
			if !s.Rematch {
				return errFinished
			}
			log.Printf("session %s finished, hosting a new game", sess.ID())
			s.newSession()
		}
	}
}

func (s *Server) chronicle(sess *session.Session) {
	if s.Chronicle == nil {
		return
	}
	sum := sess.Summary()
	if sum.Started.IsZero() {
		return
	}
	path, err := s.Chronicle.Write(sum)
	if err != nil {
		log.Printf("session %s: chronicle: %v", sess.ID(), err)
		return
	}
	log.Printf("session %s: chronicle written to %s", sess.ID(), path)
}

func (s *Server) newSession() {
	sess := session.New(s.Story, s.Session)
	s.mu.Lock()
	s.sess = sess
	s.mu.Unlock()
}

func (s *Server) current() *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

// ServeConn runs one client until it disconnects or the game ends.
func (s *Server) ServeConn(ctx context.Context, conn Conn) {
	size := s.OutboxSize
	if size <= 0 {
		size = DefaultOutboxSize
	}
	out := newOutlet(conn, size)
	addr := conn.RemoteAddr()

	sess := s.current()
	id, err := sess.Admit(ctx, out)
	if err != nil {
		log.Printf("rejected %s: %v", addr, err)
		_ = out.Send(session.Reply(err))
		_ = out.Close()
		out.wait()
		return
	}
	log.Printf("%s connected as %s", addr, id)
	defer func() {
		sess.Disconnect(context.WithoutCancel(ctx), id)
		out.wait()
	}()

	for {
		line, err := conn.ReadLine()
		if err != nil {
			log.Printf("%s (%s) read: %v", id, addr, err)
			return
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := s.dispatch(ctx, sess, &id, line); err != nil {
			_ = out.Send(session.Reply(err))
		}
	}
}

// dispatch routes one client line. A successful ROLE claim replaces the
// temporary id with the player id.
func (s *Server) dispatch(ctx context.Context, sess *session.Session, id *string, line string) error {
	cmd, err := protocol.ParseCommand(line)
	if err != nil {
		return err
	}
	switch cmd.Tag {
	case protocol.CmdRole:
		pid, err := sess.ClaimRole(ctx, *id, cmd.Arg)
		if err != nil {
			return err
		}
		*id = pid
		return nil
	case protocol.CmdChoice:
		return sess.Choose(ctx, *id, cmd.Arg)
	case protocol.CmdVote:
		return sess.CastVote(ctx, *id, cmd.Arg)
	}
	return protocol.ErrUnknownCommand
}
