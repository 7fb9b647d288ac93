package contract

import (
	"fmt"

	"github.com/juju/errors"
)

// MethodInfo is one entry of a discovered surface.
type MethodInfo struct {
	// Identity is the string the client sends and the server binds.
	Identity string
	// Contract is the declaring contract.
	Contract *Contract
	Method   Method
}

// Surface is the result of Discover: every method reachable from a root
// contract, including composed contracts and the contracts of remote
// handles, and the known type set.
type Surface struct {
	Root       *Contract
	Methods    []*MethodInfo
	KnownTypes *TypeSet
	// Remotes lists the referenceable contracts reachable through remote
	// results or parameters.
	Remotes []*Contract

	byIdentity map[string]*MethodInfo
	flattened  map[*Contract][]*MethodInfo
}

// Lookup finds a method by identity.
func (s *Surface) Lookup(identity string) (*MethodInfo, bool) {
	m, ok := s.byIdentity[identity]
	return m, ok
}

// MethodsOf returns the flattened surface of c: the methods of every
// contract c composes followed by its own. c must have been reached by
// Discover.
func (s *Surface) MethodsOf(c *Contract) []*MethodInfo {
	return s.flattened[c]
}

// IsRemote reports whether c was reached as the contract of a handle.
func (s *Surface) IsRemote(c *Contract) bool {
	for _, r := range s.Remotes {
		if r == c {
			return true
		}
	}
	return false
}

type visitState int

const (
	unvisited visitState = iota
	visiting
	visited
)

type discoverer struct {
	surface *Surface
	state   map[*Contract]visitState
	pending []*Contract
}

// Discover walks c and everything it composes or hands out, returning the
// ordered method list and the known type set. Composed contracts are
// visited before the contract itself, parameters before results.
func Discover(c *Contract) (*Surface, error) {
	if c == nil {
		return nil, &InvalidContractError{Reason: "nil contract"}
	}
	d := &discoverer{
		surface: &Surface{
			Root:       c,
			KnownTypes: newTypeSet(),
			byIdentity: make(map[string]*MethodInfo),
			flattened:  make(map[*Contract][]*MethodInfo),
		},
		state: make(map[*Contract]visitState),
	}
	d.surface.KnownTypes.add(TypeOf[Ref]())
	if err := d.visit(c); err != nil {
		return nil, errors.Trace(err)
	}
	// Handle contracts are walked once the composing walk that reached them
	// is complete, so a handle may refer back to its owner.
	for len(d.pending) > 0 {
		r := d.pending[0]
		d.pending = d.pending[1:]
		if err := d.visit(r); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return d.surface, nil
}

func (d *discoverer) visit(c *Contract) error {
	switch d.state[c] {
	case visiting:
		return &InvalidContractError{Contract: c.Name, Reason: "composition cycle"}
	case visited:
		return nil
	}
	if c.Name == "" {
		return &InvalidContractError{Reason: "contract without a name"}
	}
	d.state[c] = visiting

	var flat []*MethodInfo
	seen := make(map[string]bool)
	for _, e := range c.Embeds {
		if e == nil {
			return &InvalidContractError{Contract: c.Name, Reason: "nil composed contract"}
		}
		if err := d.visit(e); err != nil {
			return err
		}
		for _, m := range d.surface.flattened[e] {
			if !seen[m.Identity] {
				seen[m.Identity] = true
				flat = append(flat, m)
			}
		}
	}

	own := make(map[string]bool)
	for _, m := range c.Methods {
		info, err := d.method(c, m)
		if err != nil {
			return err
		}
		if own[info.Identity] {
			return &InvalidContractError{
				Contract: c.Name,
				Reason:   fmt.Sprintf("duplicate method %s", m.Signature()),
			}
		}
		own[info.Identity] = true
		if !seen[info.Identity] {
			seen[info.Identity] = true
			flat = append(flat, info)
		}
		if _, ok := d.surface.byIdentity[info.Identity]; !ok {
			d.surface.byIdentity[info.Identity] = info
			d.surface.Methods = append(d.surface.Methods, info)
		}
	}

	d.surface.flattened[c] = flat
	d.state[c] = visited
	return nil
}

func (d *discoverer) method(c *Contract, m Method) (*MethodInfo, error) {
	if m.Name == "" {
		return nil, &InvalidContractError{Contract: c.Name, Reason: "method without a name"}
	}
	identity := c.Identity(m)
	for i, p := range m.Params {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("#%d", i)
		}
		if p.Dir != In {
			return nil, &UnsupportedParameterError{Method: identity, Param: name, Dir: p.Dir}
		}
		if p.Remote != nil {
			if err := d.remote(c, p.Remote); err != nil {
				return nil, err
			}
			continue
		}
		if p.Type == nil {
			return nil, &InvalidContractError{
				Contract: c.Name,
				Reason:   fmt.Sprintf("parameter %s of %s has no type", name, m.Name),
			}
		}
		d.surface.KnownTypes.add(p.Type)
	}
	if m.Remote != nil {
		if err := d.remote(c, m.Remote); err != nil {
			return nil, err
		}
	} else {
		d.surface.KnownTypes.add(m.Result)
	}
	return &MethodInfo{Identity: identity, Contract: c, Method: m}, nil
}

// remote records r as a handle contract and queues its surface.
func (d *discoverer) remote(owner, r *Contract) error {
	if !r.IsReferenceable() {
		return &InvalidContractError{
			Contract: owner.Name,
			Reason:   fmt.Sprintf("%s is used as a handle but does not compose %s", r.Name, Referenceable.Name),
		}
	}
	if !d.surface.IsRemote(r) {
		d.surface.Remotes = append(d.surface.Remotes, r)
		d.pending = append(d.pending, r)
	}
	return nil
}
