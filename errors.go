package remoting

import "fmt"

// MethodNotFoundError is returned by a call the server answered with the
// not-found sentinel. The connection stays usable.
type MethodNotFoundError struct {
	Method string
}

func (e *MethodNotFoundError) Error() string {
	return fmt.Sprintf("remoting: method %s not found on server", e.Method)
}

// BindingError reports a contract method the implementation does not
// provide, or provides with an incompatible result.
type BindingError struct {
	Contract string
	Method   string
	Reason   string
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("remoting: cannot bind %s of %s: %s", e.Method, e.Contract, e.Reason)
}
