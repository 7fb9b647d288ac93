package remoting

import (
	"bufio"
	"io"
	"net"
	"sync"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"remoting/codec"
	"remoting/contract"
)

// Session 是代理背后的连接
// 第一次调用或 Yield 之后的下一次调用时建立连接，同一时刻只有一个请求在途
type Session struct {
	address string
	cc      codec.Codec
	surface *contract.Surface

	// 保护下面所有字段，并串行化请求
	mu      sync.Mutex
	conn    net.Conn
	reader  *bufio.Reader
	writer  *bufio.Writer
	proxies *proxyCache
}

var _ io.Closer = (*Session)(nil)

func newSession(address string, cc codec.Codec, surface *contract.Surface) *Session {
	return &Session{
		address: address,
		cc:      cc,
		surface: surface,
		proxies: newProxyCache(),
	}
}

// Connected reports whether the session currently holds a connection.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Yield disconnects now. The next call reconnects transparently.
func (s *Session) Yield() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnect()
}

// Dispose releases the connection. It is safe to call more than once.
func (s *Session) Dispose() {
	s.Yield()
}

func (s *Session) Close() error {
	s.Dispose()
	return nil
}

// Invoke calls a method of the root contract.
func (s *Session) Invoke(method string, args ...interface{}) (interface{}, error) {
	return s.invoke(0, method, args)
}

// invoke 完成一次请求和响应，target 不为 0 时调用的是该引用对应的服务端对象
func (s *Session) invoke(target int64, method string, args []interface{}) (interface{}, error) {
	info, _ := s.surface.Lookup(method)

	s.mu.Lock()
	defer s.mu.Unlock()

	req := &codec.Request{Method: method}
	if target != 0 {
		req.Args = append(req.Args, contract.Ref{ID: target})
	}
	for i, arg := range args {
		if codec.IsNil(arg) {
			// gob 不能编码接口中的空指针
			arg = nil
		}
		if info != nil && i < len(info.Method.Params) && info.Method.Params[i].Remote != nil && arg != nil {
			id, ok := s.proxies.identityOf(arg, s)
			if !ok {
				return nil, errors.NotValidf("argument %d of %s: %T is not a handle of this session", i, method, arg)
			}
			arg = contract.Ref{ID: id}
		}
		req.Args = append(req.Args, arg)
	}
	line, err := s.cc.EncodeRequest(req)
	if err != nil {
		return nil, errors.Annotatef(err, "encoding %s", method)
	}

	if err := s.connect(); err != nil {
		return nil, errors.Annotatef(err, "connecting to %s", s.address)
	}
	logrus.Debugf("remoting client: call %s", method)
	if err := codec.WriteLine(s.writer, line); err != nil {
		s.disconnect()
		return nil, errors.Annotatef(err, "sending %s", method)
	}
	reply, err := codec.ReadLine(s.reader)
	if err != nil {
		s.disconnect()
		return nil, errors.Annotatef(err, "reading reply to %s", method)
	}
	return s.interpret(method, info, reply)
}

// 解释一行响应：空行、未找到、引用标识或编码后的值
func (s *Session) interpret(method string, info *contract.MethodInfo, reply string) (interface{}, error) {
	if reply == codec.NullLine {
		return nil, nil
	}
	if reply == codec.NotFoundLine {
		return nil, &MethodNotFoundError{Method: method}
	}
	if id, ok := codec.ParseReference(reply); ok {
		var remote *contract.Contract
		if info != nil {
			remote = info.Method.Remote
		}
		return s.proxies.GetOrCreateProxy(id, remote, s), nil
	}
	v, err := s.cc.DecodeValue(reply)
	if err != nil {
		s.disconnect()
		return nil, errors.Annotatef(err, "decoding reply to %s", method)
	}
	if info == nil {
		return v, nil
	}
	v, err = codec.Conform(v, info.Method.Result)
	if err != nil {
		s.disconnect()
		return nil, errors.Annotatef(err, "reply to %s", method)
	}
	return v, nil
}

// 调用方持有 s.mu
func (s *Session) connect() error {
	if s.conn != nil {
		return nil
	}
	conn, err := net.Dial("tcp", s.address)
	if err != nil {
		return err
	}
	s.conn = conn
	s.reader = bufio.NewReader(conn)
	s.writer = bufio.NewWriter(conn)
	logrus.Debugf("remoting client: connected to %s", s.address)
	return nil
}

// 调用方持有 s.mu
func (s *Session) disconnect() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil {
		logrus.Debugf("remoting client: close %s: %v", s.address, err)
	}
	s.conn, s.reader, s.writer = nil, nil, nil
	logrus.Debugf("remoting client: disconnected from %s", s.address)
}
