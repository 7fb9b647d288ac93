package contract

import "fmt"

// InvalidContractError reports a description that is not a usable contract.
type InvalidContractError struct {
	Contract string
	Reason   string
}

func (e *InvalidContractError) Error() string {
	if e.Contract == "" {
		return "invalid contract: " + e.Reason
	}
	return fmt.Sprintf("invalid contract %q: %s", e.Contract, e.Reason)
}

// UnsupportedParameterError reports an out or by-reference parameter, which
// cannot be serialized one way.
type UnsupportedParameterError struct {
	Method string
	Param  string
	Dir    Direction
}

func (e *UnsupportedParameterError) Error() string {
	return fmt.Sprintf("unsupported %s parameter %q of %s", e.Dir, e.Param, e.Method)
}
