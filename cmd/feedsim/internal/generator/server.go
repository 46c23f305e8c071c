package generator

import (
	"context"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-relay/pkg/feed"
)

// Server speaks the upstream feed protocol to any connecting client:
// heartbeats are answered, subscriptions replace the session's symbol set
// and ticks for subscribed symbols are pushed every interval.
type Server struct {
	gen           *TickGenerator
	randMu        sync.Mutex
	rand          Rand
	interval      time.Duration
	duplicateRate float64
	logger        *zap.Logger
}

func NewServer(gen *TickGenerator, rnd Rand, interval time.Duration, duplicateRate float64, logger *zap.Logger) *Server {
	return &Server{
		gen:           gen,
		rand:          rnd,
		interval:      interval,
		duplicateRate: duplicateRate,
		logger:        logger,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn("Upgrade failed", zap.Error(err))
		return
	}
	sess := &session{
		conn:    conn,
		out:     make(chan []byte, 64),
		symbols: make(map[string]struct{}),
		logger:  s.logger.With(zap.String("remote", r.RemoteAddr)),
	}
	sess.logger.Info("Feed client connected")

	ctx, cancel := context.WithCancel(r.Context())
	go func() {
		defer cancel()
		sess.readLoop()
	}()
	go s.pushLoop(ctx, sess)
	sess.writeLoop(ctx)
}

type session struct {
	conn   net.Conn
	out    chan []byte
	logger *zap.Logger

	mu      sync.Mutex
	symbols map[string]struct{}
}

func (s *session) subscribed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (s *session) replace(list []feed.SymbolEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols = make(map[string]struct{}, len(list))
	for _, e := range list {
		s.symbols[e.Code] = struct{}{}
	}
}

func (s *session) enqueue(frame []byte) {
	select {
	case s.out <- frame:
	default:
		s.logger.Debug("Client too slow, dropping frame")
	}
}

func (s *session) readLoop() {
	for {
		data, op, err := wsutil.ReadClientData(s.conn)
		if err != nil {
			s.logger.Info("Feed client disconnected", zap.Error(err))
			return
		}
		if op != ws.OpText {
			continue
		}
		if reply := s.handle(data); reply != nil {
			s.enqueue(reply)
		}
	}
}

// handle answers one client frame; nil means no reply.
func (s *session) handle(data []byte) []byte {
	env, err := feed.Decode(data)
	if err != nil {
		s.logger.Warn("Bad frame from client", zap.Error(err))
		return nil
	}

	switch env.CmdID {
	case feed.CmdHeartbeat:
		reply, _ := feed.ResponseFrame(env, feed.CmdHeartbeatResponse, feed.RetOK, "ok")
		return reply
	case feed.CmdBatchSubscribe:
		req, err := feed.DecodeSubscribe(env)
		if err != nil {
			reply, _ := feed.ResponseFrame(env, feed.CmdBatchSubscribe, 400, err.Error())
			return reply
		}
		s.replace(req.SymbolList)
		s.logger.Info("Subscription replaced", zap.Strings("symbols", s.subscribed()))
		reply, _ := feed.ResponseFrame(env, feed.CmdBatchSubscribe, feed.RetOK, "ok")
		return reply
	default:
		return nil
	}
}

func (s *Server) pushLoop(ctx context.Context, sess *session) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p, ok := s.gen.Next(sess.subscribed())
			if !ok {
				continue
			}
			frame, err := feed.TickFrame(p)
			if err != nil {
				s.logger.Error("Failed to encode tick", zap.Error(err))
				continue
			}
			sess.enqueue(frame)
			// Redeliveries exercise the relay's dedup window.
			if s.duplicate() {
				sess.enqueue(frame)
			}
		}
	}
}

func (s *Server) duplicate() bool {
	s.randMu.Lock()
	defer s.randMu.Unlock()
	return s.rand.Float64() < s.duplicateRate
}

func (s *session) writeLoop(ctx context.Context) {
	defer s.conn.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-s.out:
			if err := wsutil.WriteServerText(s.conn, frame); err != nil {
				return
			}
		}
	}
}
