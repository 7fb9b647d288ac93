package remoting

import (
	"reflect"
	"sync"

	"github.com/juju/errors"

	"remoting/contract"
)

// 已分配引用标识的服务端对象
type remoteObject struct {
	id       int64
	instance Implementation
	svc      *service
}

// objectRegistry 为作为句柄返回的服务端对象分配引用标识
// 同一个对象在服务端的生命周期内总是得到同一个标识，标识从 1 开始，条目永不删除
type objectRegistry struct {
	mu         sync.Mutex
	lastID     int64
	byID       map[int64]*remoteObject
	byInstance map[interface{}]*remoteObject
	order      []*remoteObject
}

func newObjectRegistry() *objectRegistry {
	return &objectRegistry{
		byID:       make(map[int64]*remoteObject),
		byInstance: make(map[interface{}]*remoteObject),
	}
}

// GetOrAssignIdentity returns the identity of instance, assigning the next
// one when instance is seen for the first time. bind builds the method
// table of a new instance; its error leaves the registry unchanged.
func (r *objectRegistry) GetOrAssignIdentity(instance interface{}, bind func(Implementation) (*service, error)) (id int64, first bool, err error) {
	t := reflect.TypeOf(instance)
	if t == nil || !isReferenceShaped(t) {
		return 0, false, errors.NotValidf("handle result of type %v (pointer or channel required)", t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if obj, ok := r.byInstance[instance]; ok {
		return obj.id, false, nil
	}
	impl, ok := instance.(Implementation)
	if !ok {
		return 0, false, errors.NotImplementedf("Methods on handle result %T", instance)
	}
	svc, err := bind(impl)
	if err != nil {
		return 0, false, errors.Trace(err)
	}
	r.lastID++
	obj := &remoteObject{id: r.lastID, instance: impl, svc: svc}
	r.byID[obj.id] = obj
	r.byInstance[instance] = obj
	r.order = append(r.order, obj)
	return obj.id, true, nil
}

func (r *objectRegistry) lookup(id int64) (*remoteObject, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.byID[id]
	return obj, ok
}

// Len returns the number of identities assigned so far.
func (r *objectRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// all returns the registered objects in identity order.
func (r *objectRegistry) all() []*remoteObject {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*remoteObject(nil), r.order...)
}

// Handle is the invoker behind a proxy for a server-side object. Every call
// is sent with the object's reference as its leading argument.
type Handle struct {
	session *Session
	id      int64
}

// ID returns the reference identity assigned by the server.
func (h *Handle) ID() int64 {
	return h.id
}

func (h *Handle) Invoke(method string, args ...interface{}) (interface{}, error) {
	return h.session.invoke(h.id, method, args)
}

// proxyCache 缓存客户端收到的引用对应的代理，同一个标识总是得到同一个代理
// 调用方只在持有 Session 的锁时访问
type proxyCache struct {
	proxies map[int64]interface{}
	// 可比较的代理到标识的反向映射，用于把句柄作为参数传回服务端
	ids map[interface{}]int64
}

func newProxyCache() *proxyCache {
	return &proxyCache{
		proxies: make(map[int64]interface{}),
		ids:     make(map[interface{}]int64),
	}
}

// GetOrCreateProxy returns the proxy cached for id, or creates one with the
// stub of c. A contract without a stub yields the *Handle itself.
func (p *proxyCache) GetOrCreateProxy(id int64, c *contract.Contract, s *Session) interface{} {
	if proxy, ok := p.proxies[id]; ok {
		return proxy
	}
	handle := &Handle{session: s, id: id}
	var proxy interface{} = handle
	if c != nil && c.Stub != nil {
		proxy = c.Stub(handle)
	}
	p.proxies[id] = proxy
	if t := reflect.TypeOf(proxy); t != nil && t.Comparable() {
		p.ids[proxy] = id
	}
	return proxy
}

// identityOf maps a handle argument back to its reference. Only handles
// received on s are accepted, a reference from another session names an
// unrelated object on its server.
func (p *proxyCache) identityOf(v interface{}, s *Session) (int64, bool) {
	switch h := v.(type) {
	case *Handle:
		return h.id, h.session == s
	case contract.Ref:
		_, ok := p.proxies[h.ID]
		return h.ID, ok
	}
	if t := reflect.TypeOf(v); t == nil || !t.Comparable() {
		return 0, false
	}
	id, ok := p.ids[v]
	return id, ok
}
