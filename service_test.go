package remoting

import (
	"strings"
	"testing"

	"github.com/juju/errors"

	"remoting/codec"
	"remoting/contract"
)

func _assert(t *testing.T, ok bool, format string, args ...interface{}) {
	t.Helper()
	if !ok {
		t.Fatalf(format, args...)
	}
}

func discover(t *testing.T, c *contract.Contract) *contract.Surface {
	t.Helper()
	surface, err := contract.Discover(c)
	_assert(t, err == nil, "discover %s: %v", c.Name, err)
	return surface
}

func TestNewService(t *testing.T) {
	surface := discover(t, calculatorContract)
	svc, err := newService(calculatorContract, surface, newCalculator())
	_assert(t, err == nil, "newService failed: %v", err)
	_assert(t, svc.name == "test.Calculator", "unexpected name %q", svc.name)
	_assert(t, len(svc.method) == len(surface.MethodsOf(calculatorContract)), "bound %d methods", len(svc.method))
	_assert(t, svc.method["test.Greeter.Greet(string)"] != nil, "composed method not bound")
	_assert(t, svc.method["test.Calculator.Describe(int, int32)"] != nil, "overload not bound")
	_assert(t, svc.method["test.Calculator.Describe(string, int, int)"] != nil, "overload not bound")
	_assert(t, svc.method["test.Calculator.Greet(string)"] == nil, "method bound under the wrong contract")
	_assert(t, svc.methods()[0].Identity() == "test.Greeter.Greet(string)", "composed methods come first")
}

func TestHandlerTypes(t *testing.T) {
	add := Func2(func(a, b int) (int, error) { return a + b, nil })
	_assert(t, len(add.Params()) == 2 && add.Params()[1] == contract.TypeOf[int](), "params %v", add.Params())
	_assert(t, add.Result() == contract.TypeOf[int](), "result %v", add.Result())

	note := Proc1(func(string) error { return nil })
	_assert(t, len(note.Params()) == 1 && note.Params()[0] == contract.TypeOf[string](), "params %v", note.Params())
	_assert(t, note.Result() == nil, "procedure has result %v", note.Result())

	_, err := add.call([]interface{}{1})
	_assert(t, err != nil && strings.Contains(err.Error(), "expected 2 arguments, got 1"), "call: %v", err)
}

type greeterImpl struct {
	table *Table
}

func (g greeterImpl) Methods() *Table {
	return g.table
}

func TestBindingPrefersImplicit(t *testing.T) {
	surface := discover(t, greeterContract)
	impl := greeterImpl{table: NewTable().
		Explicit("test.Greeter", "Greet", Func1(func(string) (string, error) { return "explicit", nil })).
		Implicit("Greet", Func1(func(string) (string, error) { return "implicit", nil }))}
	svc, err := newService(greeterContract, surface, impl)
	_assert(t, err == nil, "newService failed: %v", err)
	reply, err := svc.call(svc.method["test.Greeter.Greet(string)"], []interface{}{"x"})
	_assert(t, err == nil && reply == "implicit", "got %v, %v", reply, err)
}

func TestBindingErrors(t *testing.T) {
	surface := discover(t, greeterContract)
	tests := []struct {
		name   string
		table  *Table
		reason string
	}{
		{"missing", NewTable(), "no implementation"},
		{"wrong params", NewTable().Implicit("Greet", Func1(func(int) (string, error) { return "", nil })), "no implementation"},
		{"explicit of another contract", NewTable().Explicit("test.Other", "Greet", Func1(func(string) (string, error) { return "", nil })), "no implementation"},
		{"wrong result", NewTable().Implicit("Greet", Func1(func(string) (int, error) { return 0, nil })), "returns int, declared string"},
		{"no result", NewTable().Implicit("Greet", Proc1(func(string) error { return nil })), "returns <nil>, declared string"},
	}
	for _, test := range tests {
		_, err := newService(greeterContract, surface, greeterImpl{table: test.table})
		var bindErr *BindingError
		_assert(t, errors.As(err, &bindErr), "%s: expected a BindingError, got %v", test.name, err)
		_assert(t, bindErr.Method == "test.Greeter.Greet(string)", "%s: method %q", test.name, bindErr.Method)
		_assert(t, bindErr.Reason == test.reason, "%s: reason %q", test.name, bindErr.Reason)
	}
}

func newTestDispatcher(t *testing.T) (*dispatcher, *calculator) {
	t.Helper()
	impl := newCalculator()
	d, err := newDispatcher(discover(t, calculatorContract), impl)
	_assert(t, err == nil, "newDispatcher failed: %v", err)
	return d, impl
}

func dispatch(t *testing.T, d *dispatcher, method string, args ...interface{}) outcome {
	t.Helper()
	out, err := d.Dispatch(&codec.Request{Method: method, Args: args})
	_assert(t, err == nil, "dispatch %s: %v", method, err)
	return out
}

func TestDispatch(t *testing.T) {
	d, impl := newTestDispatcher(t)

	out := dispatch(t, d, "test.Calculator.Add(int, int)", 3, 11)
	_assert(t, out.found && out.value == 14 && out.ref == 0, "Add: %+v", out)

	out = dispatch(t, d, "test.Calculator.Describe(int, int32)", 1, int32(2))
	_assert(t, out.value == "int 1, int32 2", "Describe: %+v", out)
	out = dispatch(t, d, "test.Calculator.Describe(string, int, int)", "abc", 0, 2)
	_assert(t, out.value == "abc[0:2]", "Describe: %+v", out)

	out = dispatch(t, d, "test.Calculator.set_Label(string)", "sum")
	_assert(t, out.found && out.value == nil, "set_Label: %+v", out)
	_assert(t, impl.label == "sum", "label %q", impl.label)

	out = dispatch(t, d, "test.Calculator.Missing()")
	_assert(t, !out.found, "unknown identity found: %+v", out)
	out = dispatch(t, d, "test.Calculator.Add(int, int)", 3)
	_assert(t, !out.found, "wrong arity found: %+v", out)

	m := d.root.method["test.Calculator.Add(int, int)"]
	_assert(t, m.NumCalls() == 1, "Add called %d times", m.NumCalls())
}

func TestDispatchFaults(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(&codec.Request{Method: "test.Calculator.Fail()"})
	_assert(t, err != nil && strings.Contains(err.Error(), "failure requested"), "Fail: %v", err)

	_, err = d.Dispatch(&codec.Request{Method: "test.Calculator.Panic()"})
	_assert(t, err != nil && strings.Contains(err.Error(), "panicked: panic requested"), "Panic: %v", err)

	_, err = d.Dispatch(&codec.Request{Method: "test.Calculator.Add(int, int)", Args: []interface{}{"3", 4}})
	_assert(t, err != nil, "string argument accepted for int")

	_, err = d.Dispatch(&codec.Request{Method: "test.Calculator.Total(test.Counter)", Args: []interface{}{contract.Ref{ID: 9}}})
	_assert(t, errors.Is(err, errors.NotFound), "unknown reference: %v", err)
}

func TestDispatchReferences(t *testing.T) {
	d, impl := newTestDispatcher(t)

	first := dispatch(t, d, "test.Calculator.Counter(string)", "a")
	again := dispatch(t, d, "test.Calculator.Counter(string)", "a")
	other := dispatch(t, d, "test.Calculator.Counter(string)", "b")
	_assert(t, first.ref == 1 && again.ref == 1, "same instance got %d and %d", first.ref, again.ref)
	_assert(t, other.ref == 2, "second instance got %d", other.ref)
	_assert(t, d.objects.Len() == 2, "registry holds %d objects", d.objects.Len())

	none := dispatch(t, d, "test.Calculator.Counter(string)", "")
	_assert(t, none.found && none.ref == 0 && codec.IsNil(none.value), "nil handle: %+v", none)

	out := dispatch(t, d, "test.Counter.Inc()", contract.Ref{ID: 1})
	_assert(t, out.value == 1, "Inc: %+v", out)
	out = dispatch(t, d, "test.Counter.Inc()", contract.Ref{ID: 1})
	_assert(t, out.value == 2, "Inc: %+v", out)
	_assert(t, impl.counters["a"].n == 2 && impl.counters["b"].n == 0, "targeted the wrong instance")

	out = dispatch(t, d, "test.Calculator.Total(test.Counter)", contract.Ref{ID: 1})
	_assert(t, out.value == 2, "Total: %+v", out)
	out = dispatch(t, d, "test.Calculator.Total(test.Counter)", nil)
	_assert(t, out.value == -1, "Total(nil): %+v", out)

	out = dispatch(t, d, "remoting.Referenceable.Dispose()", contract.Ref{ID: 2})
	_assert(t, out.found && impl.counters["b"].disposed, "Dispose: %+v", out)
	// 释放后标识仍然有效
	out = dispatch(t, d, "test.Counter.Value()", contract.Ref{ID: 2})
	_assert(t, out.found && out.value == 0, "Value after Dispose: %+v", out)

	// 根契约没有的方法不能在根实现上调用
	out = dispatch(t, d, "test.Counter.Inc()")
	_assert(t, !out.found, "untargeted handle method found: %+v", out)
}

func TestDispatchRejectsValueHandles(t *testing.T) {
	surface := discover(t, calculatorContract)
	table := newCalculator().Methods()
	// 按值返回的结构体没有可以作为标识的地址
	table.entries["Counter"] = []Handler{Func1(func(string) (counter, error) {
		return counter{}, nil
	})}
	d, err := newDispatcher(surface, greeterImpl{table: table})
	_assert(t, err == nil, "newDispatcher failed: %v", err)
	_, err = d.Dispatch(&codec.Request{Method: "test.Calculator.Counter(string)", Args: []interface{}{"a"}})
	_assert(t, errors.Is(err, errors.NotValid), "value handle accepted: %v", err)
}
