package remoting

import (
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"remoting/codec"
	"remoting/contract"
)

// 契约中的一个方法及其绑定的实现
type methodType struct {
	info    *contract.MethodInfo
	handler Handler
	// 方法被调用的次数
	numCalls uint64
}

// 返回方法被调用的次数，通过原子操作保证读取的过程中不会被修改
func (m *methodType) NumCalls() uint64 {
	return atomic.LoadUint64(&m.numCalls)
}

// Identity is the wire identity of the method.
func (m *methodType) Identity() string {
	return m.info.Identity
}

// Returns renders the declared result for the debug page.
func (m *methodType) Returns() string {
	switch {
	case m.info.Method.Remote != nil:
		return "handle " + m.info.Method.Remote.Name
	case m.info.Method.Result != nil:
		return m.info.Method.Result.String()
	}
	return ""
}

// 存储一个实现对象及其绑定的契约方法
type service struct {
	// 契约的名字
	name     string
	contract *contract.Contract
	// 实现对象本身
	rcvr Implementation
	// 以方法标识为键
	method map[string]*methodType
	// 按契约展开的顺序
	order []*methodType
}

// newService 把契约展开后的每个方法绑定到实现的方法表上
// 先查找隐式实现，再查找显式实现，任何一个方法找不到实现都返回 BindingError
func newService(c *contract.Contract, surface *contract.Surface, rcvr Implementation) (*service, error) {
	svc := &service{
		name:     c.Name,
		contract: c,
		rcvr:     rcvr,
		method:   make(map[string]*methodType),
	}
	table := rcvr.Methods()
	if table == nil {
		table = NewTable()
	}
	for _, info := range surface.MethodsOf(c) {
		h, ok := table.resolve(info.Contract, info.Method)
		if !ok {
			return nil, &BindingError{Contract: c.Name, Method: info.Identity, Reason: "no implementation"}
		}
		if err := h.checkResult(info.Method); err != nil {
			return nil, &BindingError{Contract: c.Name, Method: info.Identity, Reason: err.Error()}
		}
		m := &methodType{info: info, handler: h}
		svc.method[info.Identity] = m
		svc.order = append(svc.order, m)
		logrus.Debugf("remoting server: bind method %s", info.Identity)
	}
	return svc, nil
}

// 调用指定的方法，实现中的 panic 会被转换为错误
func (s *service) call(m *methodType, args []interface{}) (reply interface{}, err error) {
	atomic.AddUint64(&m.numCalls, 1)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("remoting server: %s panicked: %v", m.info.Identity, r)
		}
	}()
	return m.handler.call(args)
}

// outcome 是一次分发的结果
type outcome struct {
	// 方法标识未被绑定时为 false
	found bool
	value interface{}
	// 返回的是服务端对象时为其引用标识，否则为 0
	ref int64
}

// dispatcher 把解码后的请求分发到根实现或已分配引用标识的对象上
type dispatcher struct {
	surface *contract.Surface
	root    *service
	objects *objectRegistry
}

func newDispatcher(surface *contract.Surface, root Implementation) (*dispatcher, error) {
	svc, err := newService(surface.Root, surface, root)
	if err != nil {
		return nil, err
	}
	return &dispatcher{
		surface: surface,
		root:    svc,
		objects: newObjectRegistry(),
	}, nil
}

// Dispatch executes req. An unknown identity is not an error: the outcome
// reports found == false. Handler errors and panics are returned as errors.
func (d *dispatcher) Dispatch(req *codec.Request) (outcome, error) {
	svc, m, args := d.resolve(req)
	if m == nil {
		logrus.Debugf("remoting server: method %s not found", req.Method)
		return outcome{}, nil
	}
	args, err := d.resolveHandles(m, args)
	if err != nil {
		return outcome{}, errors.Annotatef(err, "calling %s", m.info.Identity)
	}
	reply, err := svc.call(m, args)
	if err != nil {
		return outcome{}, errors.Annotatef(err, "calling %s", m.info.Identity)
	}
	out := outcome{found: true, value: reply}
	if m.info.Method.Remote != nil && !codec.IsNil(reply) {
		remote := m.info.Method.Remote
		id, first, err := d.objects.GetOrAssignIdentity(reply, func(impl Implementation) (*service, error) {
			return newService(remote, d.surface, impl)
		})
		if err != nil {
			return outcome{}, errors.Annotatef(err, "result of %s", m.info.Identity)
		}
		if first {
			logrus.Debugf("remoting server: assigned reference %d to %T", id, reply)
		}
		out.ref = id
	}
	return out, nil
}

// resolve 找到请求对应的服务和方法
// 参数个数比方法参数多一个且第一个参数为 contract.Ref 时，调用的是该引用对应的对象
func (d *dispatcher) resolve(req *codec.Request) (*service, *methodType, []interface{}) {
	if len(req.Args) > 0 {
		if ref, ok := req.Args[0].(contract.Ref); ok {
			if obj, ok := d.objects.lookup(ref.ID); ok {
				if m, ok := obj.svc.method[req.Method]; ok && len(m.info.Method.Params)+1 == len(req.Args) {
					return obj.svc, m, req.Args[1:]
				}
			}
		}
	}
	if m, ok := d.root.method[req.Method]; ok && len(m.info.Method.Params) == len(req.Args) {
		return d.root, m, req.Args
	}
	return nil, nil, nil
}

// 把句柄参数替换为服务端对象
func (d *dispatcher) resolveHandles(m *methodType, args []interface{}) ([]interface{}, error) {
	var out []interface{}
	for i, p := range m.info.Method.Params {
		if p.Remote == nil || args[i] == nil {
			continue
		}
		ref, ok := args[i].(contract.Ref)
		if !ok {
			return nil, errors.Errorf("argument %d is %T, expected a handle", i, args[i])
		}
		obj, ok := d.objects.lookup(ref.ID)
		if !ok {
			return nil, errors.NotFoundf("reference %d", ref.ID)
		}
		if out == nil {
			out = append([]interface{}(nil), args...)
		}
		out[i] = obj.instance
	}
	if out == nil {
		return args, nil
	}
	return out, nil
}

func (s *service) methods() []*methodType {
	return s.order
}

// 判断 t 是否可以作为服务端对象的标识
func isReferenceShaped(t reflect.Type) bool {
	return t.Kind() == reflect.Ptr || t.Kind() == reflect.Chan
}
