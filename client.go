package remoting

import (
	"net"
	"strconv"

	"github.com/juju/errors"

	"remoting/codec"
	"remoting/contract"
)

// Option configures a client.
type Option struct {
	// CodecType selects the line codec. The server accepts every registered
	// codec, so clients of one server may differ.
	CodecType codec.Type
}

var DefaultOption = &Option{
	CodecType: codec.GobType,
}

func parseOption(opts ...*Option) (*Option, error) {
	if len(opts) == 0 || opts[0] == nil {
		return DefaultOption, nil
	} else if len(opts) != 1 {
		return nil, errors.New("only one option is supported")
	}
	opt := *opts[0]
	if opt.CodecType == "" {
		opt.CodecType = DefaultOption.CodecType
	}
	if _, ok := codec.NewCodecFuncMap[opt.CodecType]; !ok {
		return nil, errors.NotSupportedf("codec type %q", opt.CodecType)
	}
	return &opt, nil
}

// Client 持有实现契约 C 的本地代理
// 调用代理的方法会通过 Session 完成一次网络往返
type Client[C any] struct {
	contract *contract.Contract
	surface  *contract.Surface
	session  *Session
	proxy    C
}

// NewClient discovers c, builds the codec and the root proxy. No connection
// is made until the first call.
func NewClient[C any](hostname string, port int, c *contract.Contract, opts ...*Option) (*Client[C], error) {
	opt, err := parseOption(opts...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	surface, err := contract.Discover(c)
	if err != nil {
		return nil, errors.Trace(err)
	}
	cc, err := codec.New(opt.CodecType, surface.KnownTypes)
	if err != nil {
		return nil, errors.Trace(err)
	}
	session := newSession(net.JoinHostPort(hostname, strconv.Itoa(port)), cc, surface)

	var stub interface{} = session
	if c.Stub != nil {
		stub = c.Stub(session)
	}
	proxy, ok := stub.(C)
	if !ok {
		return nil, errors.Errorf("remoting: stub of %s is %T, not %s", c.Name, stub, contract.TypeOf[C]())
	}
	return &Client[C]{
		contract: c,
		surface:  surface,
		session:  session,
		proxy:    proxy,
	}, nil
}

// Proxy returns the value implementing the contract.
func (client *Client[C]) Proxy() C {
	return client.proxy
}

// Session returns the connection behind the proxy and every handle it
// produced.
func (client *Client[C]) Session() *Session {
	return client.session
}

// Invoke calls a root contract method by identity.
func (client *Client[C]) Invoke(method string, args ...interface{}) (interface{}, error) {
	return client.session.Invoke(method, args...)
}

// Surface returns the discovered method surface of the client contract.
func (client *Client[C]) Surface() *contract.Surface {
	return client.surface
}

func (client *Client[C]) Close() error {
	return client.session.Close()
}

// WithSession runs f with the proxy and disposes the session afterwards,
// whether f fails or not.
func (client *Client[C]) WithSession(f func(C) error) error {
	defer client.session.Dispose()
	return f(client.proxy)
}
