package remoting

import (
	"fmt"
	"net"
	"reflect"
	"sync"
	"testing"

	"github.com/juju/errors"

	"remoting/contract"
)

// GraphNode links to other nodes by index into Graph.Nodes, so shared and
// cyclic links survive encoding.
type GraphNode struct {
	Label string
	Next  []int
}

type Graph struct {
	Nodes []GraphNode
}

type Greeter interface {
	Greet(name string) (string, error)
}

type Counter interface {
	Inc() (int, error)
	Value() (int, error)
	Dispose() error
}

type Calculator interface {
	Greeter
	Add(a, b int) (int, error)
	DescribeInt(a int, b int32) (string, error)
	DescribeText(s string, a, b int) (string, error)
	Label() (string, error)
	SetLabel(label string) error
	Note(text string) error
	Insert(g *Graph) (*Graph, error)
	Counter(name string) (Counter, error)
	Total(c Counter) (int, error)
	Tick(client int) error
	Fail() (int, error)
	Panic() error
}

var (
	intType    = contract.TypeOf[int]()
	stringType = contract.TypeOf[string]()
	graphType  = contract.TypeOf[*Graph]()
)

func in(name string, t reflect.Type) contract.Param {
	return contract.Param{Name: name, Type: t}
}

var greeterContract = &contract.Contract{
	Name: "test.Greeter",
	Methods: []contract.Method{
		{Name: "Greet", Params: []contract.Param{in("name", stringType)}, Result: stringType},
	},
}

var counterContract = &contract.Contract{
	Name:   "test.Counter",
	Embeds: []*contract.Contract{contract.Referenceable},
	Methods: []contract.Method{
		{Name: "Inc", Result: intType},
		{Name: "Value", Result: intType},
	},
	Stub: func(inv contract.Invoker) interface{} {
		return &counterStub{inv: inv}
	},
}

var calculatorContract = &contract.Contract{
	Name:   "test.Calculator",
	Embeds: []*contract.Contract{greeterContract},
	Methods: []contract.Method{
		{Name: "Add", Params: []contract.Param{in("a", intType), in("b", intType)}, Result: intType},
		{Name: "Describe", Params: []contract.Param{in("a", intType), in("b", contract.TypeOf[int32]())}, Result: stringType},
		{Name: "Describe", Params: []contract.Param{in("s", stringType), in("a", intType), in("b", intType)}, Result: stringType},
		contract.Getter("Label", stringType),
		contract.Setter("Label", stringType),
		{Name: "Note", Params: []contract.Param{in("text", stringType)}},
		{Name: "Insert", Params: []contract.Param{in("g", graphType)}, Result: graphType},
		{Name: "Counter", Params: []contract.Param{in("name", stringType)}, Remote: counterContract},
		{Name: "Total", Params: []contract.Param{{Name: "c", Remote: counterContract}}, Result: intType},
		{Name: "Tick", Params: []contract.Param{in("client", intType)}},
		{Name: "Fail", Result: intType},
		{Name: "Panic"},
	},
	Stub: func(inv contract.Invoker) interface{} {
		return &calculatorStub{inv: inv}
	},
}

type counterStub struct {
	inv contract.Invoker
}

func (s *counterStub) Inc() (int, error) {
	return Result[int](s.inv.Invoke("test.Counter.Inc()"))
}

func (s *counterStub) Value() (int, error) {
	return Result[int](s.inv.Invoke("test.Counter.Value()"))
}

func (s *counterStub) Dispose() error {
	return Void(s.inv.Invoke("remoting.Referenceable.Dispose()"))
}

type calculatorStub struct {
	inv contract.Invoker
}

func (s *calculatorStub) Greet(name string) (string, error) {
	return Result[string](s.inv.Invoke("test.Greeter.Greet(string)", name))
}

func (s *calculatorStub) Add(a, b int) (int, error) {
	return Result[int](s.inv.Invoke("test.Calculator.Add(int, int)", a, b))
}

func (s *calculatorStub) DescribeInt(a int, b int32) (string, error) {
	return Result[string](s.inv.Invoke("test.Calculator.Describe(int, int32)", a, b))
}

func (s *calculatorStub) DescribeText(text string, a, b int) (string, error) {
	return Result[string](s.inv.Invoke("test.Calculator.Describe(string, int, int)", text, a, b))
}

func (s *calculatorStub) Label() (string, error) {
	return Result[string](s.inv.Invoke("test.Calculator.get_Label()"))
}

func (s *calculatorStub) SetLabel(label string) error {
	return Void(s.inv.Invoke("test.Calculator.set_Label(string)", label))
}

func (s *calculatorStub) Note(text string) error {
	return Void(s.inv.Invoke("test.Calculator.Note(string)", text))
}

func (s *calculatorStub) Insert(g *Graph) (*Graph, error) {
	return Result[*Graph](s.inv.Invoke("test.Calculator.Insert(*remoting.Graph)", g))
}

func (s *calculatorStub) Counter(name string) (Counter, error) {
	return Result[Counter](s.inv.Invoke("test.Calculator.Counter(string)", name))
}

func (s *calculatorStub) Total(c Counter) (int, error) {
	return Result[int](s.inv.Invoke("test.Calculator.Total(test.Counter)", c))
}

func (s *calculatorStub) Tick(client int) error {
	return Void(s.inv.Invoke("test.Calculator.Tick(int)", client))
}

func (s *calculatorStub) Fail() (int, error) {
	return Result[int](s.inv.Invoke("test.Calculator.Fail()"))
}

func (s *calculatorStub) Panic() error {
	return Void(s.inv.Invoke("test.Calculator.Panic()"))
}

// calculator is the server side implementation. The dispatcher runs one
// request at a time; mu only guards what the tests read concurrently.
type calculator struct {
	label    string
	notes    []string
	counters map[string]*counter

	mu    sync.Mutex
	ticks []int
}

func newCalculator() *calculator {
	return &calculator{counters: make(map[string]*counter)}
}

func (c *calculator) Methods() *Table {
	return NewTable().
		Explicit("test.Greeter", "Greet", Func1(func(name string) (string, error) {
			return "hello " + name, nil
		})).
		Implicit("Add", Func2(func(a, b int) (int, error) {
			return a + b, nil
		})).
		Implicit("Describe", Func2(func(a int, b int32) (string, error) {
			return fmt.Sprintf("int %d, int32 %d", a, b), nil
		})).
		Implicit("Describe", Func3(func(s string, a, b int) (string, error) {
			return fmt.Sprintf("%s[%d:%d]", s, a, b), nil
		})).
		Implicit("get_Label", Func0(func() (string, error) {
			return c.label, nil
		})).
		Implicit("set_Label", Proc1(func(label string) error {
			c.label = label
			return nil
		})).
		Implicit("Note", Proc1(func(text string) error {
			c.notes = append(c.notes, text)
			return nil
		})).
		Implicit("Insert", Func1(c.insert)).
		Implicit("Counter", Func1(c.counter)).
		Implicit("Total", Func1(func(ctr *counter) (int, error) {
			if ctr == nil {
				return -1, nil
			}
			return ctr.n, nil
		})).
		Implicit("Tick", Proc1(func(client int) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.ticks = append(c.ticks, client)
			return nil
		})).
		Implicit("Fail", Func0(func() (int, error) {
			return 0, errors.New("failure requested")
		})).
		Implicit("Panic", Proc0(func() error {
			panic("panic requested")
		}))
}

// insert adds a node linked to every existing node and to itself.
func (c *calculator) insert(g *Graph) (*Graph, error) {
	if g == nil {
		return nil, nil
	}
	next := make([]int, 0, len(g.Nodes)+1)
	for i := range g.Nodes {
		next = append(next, i)
	}
	next = append(next, len(g.Nodes))
	g.Nodes = append(g.Nodes, GraphNode{Label: "inserted", Next: next})
	return g, nil
}

func (c *calculator) counter(name string) (*counter, error) {
	if name == "" {
		return nil, nil
	}
	ctr, ok := c.counters[name]
	if !ok {
		ctr = &counter{name: name}
		c.counters[name] = ctr
	}
	return ctr, nil
}

func (c *calculator) tickLog() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.ticks...)
}

type counter struct {
	name     string
	n        int
	disposed bool
}

func (c *counter) Methods() *Table {
	return NewTable().
		Implicit("Inc", Func0(func() (int, error) {
			c.n++
			return c.n, nil
		})).
		Implicit("Value", Func0(func() (int, error) {
			return c.n, nil
		})).
		Implicit("Dispose", Proc0(func() error {
			c.disposed = true
			return nil
		}))
}

// recordingObserver keeps every notification for inspection.
type recordingObserver struct {
	mu           sync.Mutex
	phases       []Phase
	connected    []int
	disconnected []int
}

func (o *recordingObserver) Connected(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.connected = append(o.connected, n)
}

func (o *recordingObserver) Disconnected(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.disconnected = append(o.disconnected, n)
}

func (o *recordingObserver) PhaseChanged(p Phase) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, p)
}

func (o *recordingObserver) seenPhases() []Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Phase(nil), o.phases...)
}

// startCalculator starts a loopback server for impl and stops it at the end
// of the test.
func startCalculator(t *testing.T, impl *calculator, observer Observer) *Server {
	t.Helper()
	server, err := NewServer(0, calculatorContract, impl, &ServerOption{Host: "127.0.0.1", Observer: observer})
	if err != nil {
		t.Fatal(err)
	}
	if err := server.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = server.Stop()
	})
	return server
}

func dialCalculator(t *testing.T, server *Server, opts ...*Option) *Client[Calculator] {
	t.Helper()
	addr := server.Addr().(*net.TCPAddr)
	client, err := NewClient[Calculator]("127.0.0.1", addr.Port, calculatorContract, opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}
