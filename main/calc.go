package main

import (
	"remoting"
	"remoting/contract"
)

type Args struct {
	Num1, Num2 int
}

// Accumulator 是服务端对象，通过句柄在客户端使用
type Accumulator interface {
	Add(n int) (int, error)
	Total() (int, error)
	Dispose() error
}

type Calculator interface {
	Sum(args Args) (int, error)
	Add(a, b int) (int, error)
	Accumulator(name string) (Accumulator, error)
}

var (
	intType  = contract.TypeOf[int]()
	argsType = contract.TypeOf[Args]()
)

var accumulatorContract = &contract.Contract{
	Name:   "demo.Accumulator",
	Embeds: []*contract.Contract{contract.Referenceable},
	Methods: []contract.Method{
		{Name: "Add", Params: []contract.Param{{Name: "n", Type: intType}}, Result: intType},
		{Name: "Total", Result: intType},
	},
	Stub: func(inv contract.Invoker) interface{} {
		return accumulatorStub{inv}
	},
}

var calculatorContract = &contract.Contract{
	Name: "demo.Calculator",
	Methods: []contract.Method{
		{Name: "Sum", Params: []contract.Param{{Name: "args", Type: argsType}}, Result: intType},
		{Name: "Add", Params: []contract.Param{{Name: "a", Type: intType}, {Name: "b", Type: intType}}, Result: intType},
		{Name: "Accumulator", Params: []contract.Param{{Name: "name", Type: contract.TypeOf[string]()}}, Remote: accumulatorContract},
	},
	Stub: func(inv contract.Invoker) interface{} {
		return calculatorStub{inv}
	},
}

type accumulatorStub struct {
	inv contract.Invoker
}

func (s accumulatorStub) Add(n int) (int, error) {
	return remoting.Result[int](s.inv.Invoke("demo.Accumulator.Add(int)", n))
}

func (s accumulatorStub) Total() (int, error) {
	return remoting.Result[int](s.inv.Invoke("demo.Accumulator.Total()"))
}

func (s accumulatorStub) Dispose() error {
	return remoting.Void(s.inv.Invoke("remoting.Referenceable.Dispose()"))
}

type calculatorStub struct {
	inv contract.Invoker
}

func (s calculatorStub) Sum(args Args) (int, error) {
	return remoting.Result[int](s.inv.Invoke("demo.Calculator.Sum(main.Args)", args))
}

func (s calculatorStub) Add(a, b int) (int, error) {
	return remoting.Result[int](s.inv.Invoke("demo.Calculator.Add(int, int)", a, b))
}

func (s calculatorStub) Accumulator(name string) (Accumulator, error) {
	return remoting.Result[Accumulator](s.inv.Invoke("demo.Calculator.Accumulator(string)", name))
}

// calculator 是演示用的实现
type calculator struct {
	accumulators map[string]*accumulator
}

func newCalculator() *calculator {
	return &calculator{accumulators: make(map[string]*accumulator)}
}

func (c *calculator) Methods() *remoting.Table {
	return remoting.NewTable().
		Implicit("Sum", remoting.Func1(func(args Args) (int, error) {
			return args.Num1 + args.Num2, nil
		})).
		Implicit("Add", remoting.Func2(func(a, b int) (int, error) {
			return a + b, nil
		})).
		Implicit("Accumulator", remoting.Func1(func(name string) (*accumulator, error) {
			acc, ok := c.accumulators[name]
			if !ok {
				acc = &accumulator{}
				c.accumulators[name] = acc
			}
			return acc, nil
		}))
}

type accumulator struct {
	total int
}

func (a *accumulator) Methods() *remoting.Table {
	return remoting.NewTable().
		Implicit("Add", remoting.Func1(func(n int) (int, error) {
			a.total += n
			return a.total, nil
		})).
		Implicit("Total", remoting.Func0(func() (int, error) {
			return a.total, nil
		})).
		Implicit("Dispose", remoting.Proc0(func() error {
			return nil
		}))
}
