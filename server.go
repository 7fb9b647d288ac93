package remoting

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"gopkg.in/tomb.v2"

	"remoting/codec"
	"remoting/contract"
)

// ServerOption configures a server.
type ServerOption struct {
	// Host is the listen address, all interfaces when empty.
	Host string
	// Observer receives lifecycle notifications, logging when nil.
	Observer Observer
}

var DefaultServerOption = &ServerOption{}

func parseServerOption(opts ...*ServerOption) (*ServerOption, error) {
	if len(opts) == 0 || opts[0] == nil {
		return DefaultServerOption, nil
	} else if len(opts) != 1 {
		return nil, errors.New("only one option is supported")
	}
	return opts[0], nil
}

// Server 接受多个客户端的连接，在一个分发协程中依次为它们执行请求
// 同一时刻只执行一个请求，实现对象不需要加锁
type Server struct {
	port       int
	host       string
	surface    *contract.Surface
	dispatcher *dispatcher
	codecs     map[codec.Type]codec.Codec
	observer   Observer
	metrics    *Collector
	registry   *prometheus.Registry

	tomb     tomb.Tomb
	done     chan struct{}
	listener net.Listener

	// 保护客户端列表和下面的标记，work 在有新客户端或关闭时发出信号
	mu       sync.Mutex
	work     *sync.Cond
	clients  []*clientWrapper
	started  bool
	stopping bool
	closing  bool

	phaseMu sync.Mutex
	phase   Phase
}

// NewServer binds every method of c to impl. The server listens on port
// once started; port 0 picks an ephemeral port.
func NewServer(port int, c *contract.Contract, impl Implementation, opts ...*ServerOption) (*Server, error) {
	opt, err := parseServerOption(opts...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	s := &Server{
		port:     port,
		host:     opt.Host,
		observer: opt.Observer,
		codecs:   make(map[codec.Type]codec.Codec),
		metrics:  NewMetricsCollector(),
		registry: prometheus.NewRegistry(),
		done:     make(chan struct{}),
	}
	if s.observer == nil {
		s.observer = logObserver{}
	}
	s.work = sync.NewCond(&s.mu)
	s.setPhase(ReflectionStarted)
	if err := s.bind(c, impl); err != nil {
		s.setPhase(Failed)
		return nil, errors.Trace(err)
	}
	if err := s.registry.Register(s.metrics); err != nil {
		s.setPhase(Failed)
		return nil, errors.Trace(err)
	}
	s.setPhase(ReflectionComplete)
	return s, nil
}

func (s *Server) bind(c *contract.Contract, impl Implementation) error {
	if impl == nil {
		return errors.NotValidf("nil implementation")
	}
	surface, err := contract.Discover(c)
	if err != nil {
		return errors.Trace(err)
	}
	d, err := newDispatcher(surface, impl)
	if err != nil {
		return errors.Trace(err)
	}
	// 服务端接受所有已注册的编码器，按请求行的标记字母选择
	for t := range codec.NewCodecFuncMap {
		cc, err := codec.New(t, surface.KnownTypes)
		if err != nil {
			return errors.Trace(err)
		}
		s.codecs[t] = cc
	}
	s.surface, s.dispatcher = surface, d
	for _, info := range surface.MethodsOf(c) {
		logrus.Infof("remoting server: register method %s", info.Identity)
	}
	return nil
}

// Start opens the listener and starts the accept and dispatch loops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.AlreadyExistsf("started server")
	}
	s.started = true
	s.mu.Unlock()

	listener, err := net.Listen("tcp", net.JoinHostPort(s.host, strconv.Itoa(s.port)))
	if err != nil {
		s.setPhase(Failed)
		close(s.done)
		return errors.Annotate(err, "remoting server: listen")
	}
	s.listener = listener
	logrus.Infof("remoting server: listen on %s", listener.Addr())
	s.setPhase(Started)

	s.tomb.Go(s.run)
	go func() {
		if err := s.tomb.Wait(); err != nil {
			logrus.Errorf("remoting server: %v", err)
			s.setPhase(Failed)
		} else {
			s.setPhase(Stopped)
		}
		close(s.done)
	}()
	return nil
}

func (s *Server) run() error {
	s.tomb.Go(s.acceptLoop)
	s.tomb.Go(s.dispatchLoop)
	<-s.tomb.Dying()
	s.shutdown()
	return nil
}

// Stop shuts the server down and waits for its loops to exit. Clients still
// connected are disconnected.
func (s *Server) Stop() error {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.NotValidf("stopping a server that was not started")
	}
	if s.listener == nil {
		// 启动失败，没有需要停止的协程
		return nil
	}
	s.requestStop()
	s.sendStopToken()
	s.tomb.Kill(nil)
	<-s.done
	return s.tomb.Err()
}

// Done is closed once the server has stopped or failed.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Addr returns the listen address of a started server.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Phase returns the current lifecycle phase.
func (s *Server) Phase() Phase {
	s.phaseMu.Lock()
	defer s.phaseMu.Unlock()
	return s.phase
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Registry returns the prometheus registry holding the server metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Server) setPhase(p Phase) {
	s.phaseMu.Lock()
	if s.phase == p && p != ReflectionStarted {
		s.phaseMu.Unlock()
		return
	}
	s.phase = p
	s.phaseMu.Unlock()
	s.observer.PhaseChanged(p)
}

func (s *Server) requestStop() {
	s.mu.Lock()
	already := s.stopping
	s.stopping = true
	s.mu.Unlock()
	if !already {
		s.setPhase(StopRequested)
	}
}

// 通过本地回环连接发送停止标记，唤醒阻塞中的分发协程
func (s *Server) sendStopToken() {
	addr, ok := s.listener.Addr().(*net.TCPAddr)
	if !ok {
		return
	}
	host := addr.IP
	if host.IsUnspecified() {
		if host.To4() != nil {
			host = net.IPv4(127, 0, 0, 1)
		} else {
			host = net.IPv6loopback
		}
	}
	conn, err := net.Dial("tcp", net.JoinHostPort(host.String(), strconv.Itoa(addr.Port)))
	if err != nil {
		logrus.Debugf("remoting server: stop token not sent: %v", err)
		return
	}
	defer conn.Close()
	if _, err := conn.Write([]byte(codec.StopLine + "\n")); err != nil {
		logrus.Debugf("remoting server: stop token not sent: %v", err)
	}
}

// 关闭监听和所有客户端连接，并唤醒等待中的分发协程
func (s *Server) shutdown() {
	s.mu.Lock()
	s.closing = true
	clients := s.clients
	s.clients = nil
	s.metrics.connectedClients.Set(0)
	s.work.Broadcast()
	s.mu.Unlock()

	if err := s.listener.Close(); err != nil {
		logrus.Debugf("remoting server: close listener: %v", err)
	}
	for _, c := range clients {
		_ = c.conn.Close()
	}
	if len(clients) > 0 {
		s.observer.Disconnected(0)
	}
}

func (s *Server) acceptLoop() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return nil
			}
			return errors.Annotate(err, "remoting server: accept")
		}
		s.mu.Lock()
		if s.closing {
			s.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		s.clients = append(s.clients, newClientWrapper(conn, startingCount(s.clients)))
		n := len(s.clients)
		s.metrics.connectedClients.Set(float64(n))
		s.work.Signal()
		s.mu.Unlock()
		logrus.Debugf("remoting server: accepted %s", conn.RemoteAddr())
		s.observer.Connected(n)
	}
}

func (s *Server) dispatchLoop() error {
	for {
		s.mu.Lock()
		for len(s.clients) == 0 && !s.closing {
			s.work.Wait()
		}
		if s.closing {
			s.mu.Unlock()
			return nil
		}
		c := s.clients[chooseNext(s.clients)]
		s.mu.Unlock()

		stop, err := s.exchange(c)
		if err != nil || stop {
			if err != nil && !s.isStopping() {
				logrus.Warnf("remoting server: dropping client %s: %v", c.conn.RemoteAddr(), err)
			}
			s.drop(c)
		} else {
			s.mu.Lock()
			c.serviceCount++
			s.mu.Unlock()
		}
		if stop {
			logrus.Infof("remoting server: stop requested by %s", c.conn.RemoteAddr())
			s.requestStop()
			s.tomb.Kill(nil)
		}
	}
}

func (s *Server) isStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

// 移除并关闭一个客户端
func (s *Server) drop(c *clientWrapper) {
	_ = c.conn.Close()
	s.mu.Lock()
	removed := false
	for i, other := range s.clients {
		if other == c {
			s.clients = append(s.clients[:i], s.clients[i+1:]...)
			removed = true
			break
		}
	}
	n := len(s.clients)
	s.metrics.connectedClients.Set(float64(n))
	s.mu.Unlock()
	if removed {
		s.observer.Disconnected(n)
	}
}

// exchange 读取一行请求，执行并写回一行响应
// 收到停止标记时 stop 为 true
func (s *Server) exchange(c *clientWrapper) (stop bool, err error) {
	line, err := codec.ReadLine(c.reader)
	if err != nil {
		return false, err
	}
	if line == codec.StopLine {
		return true, nil
	}
	started := time.Now()
	reply, outcome, err := s.serve(line)
	if err != nil {
		s.metrics.served(outcomeFault, started)
		return false, err
	}
	if err := codec.WriteLine(c.writer, reply); err != nil {
		return false, err
	}
	s.metrics.served(outcome, started)
	return false, nil
}

func (s *Server) serve(line string) (reply string, outcome string, err error) {
	t, ok := codec.TypeOfLine(line)
	if !ok {
		return "", "", errors.NotValidf("request line")
	}
	cc := s.codecs[t]
	req, err := cc.DecodeRequest(line)
	if err != nil {
		return "", "", errors.Annotate(err, "decoding request")
	}
	logrus.Debugf("remoting server: call %s", req.Method)
	out, err := s.dispatcher.Dispatch(req)
	switch {
	case err != nil:
		return "", "", err
	case !out.found:
		return codec.NotFoundLine, outcomeNotFound, nil
	case out.ref != 0:
		return codec.FormatReference(out.ref), outcomeReference, nil
	case codec.IsNil(out.value):
		return codec.NullLine, outcomeNull, nil
	}
	reply, err = cc.EncodeValue(out.value)
	if err != nil {
		return "", "", errors.Annotatef(err, "encoding result of %s", req.Method)
	}
	return reply, outcomeValue, nil
}
