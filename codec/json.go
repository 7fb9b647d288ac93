package codec

import (
	"encoding/base64"
	"math"
	"reflect"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
	"github.com/juju/errors"

	"remoting/contract"
)

// map 的键按顺序输出，保证编码结果是确定的
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// 带类型名的值，类型名为 reflect.Type.String()
// JSON 无法表示的单个值放在 Text 或 Bits 中：非 UTF-8 文本按 base64 编码，
// NaN、无穷大和负零按 IEEE 754 位模式编码
type jsonValue struct {
	Type  string              `json:"t,omitempty"`
	Value jsoniter.RawMessage `json:"v,omitempty"`
	Text  string              `json:"s,omitempty"`
	Bits  *uint64             `json:"f,omitempty"`
}

type jsonRequest struct {
	Method string      `json:"m"`
	Args   []jsonValue `json:"a"`
}

// JSONCodec encodes every value with its type name and resolves names
// against the known types and the predeclared types. A text or float value
// that JSON cannot carry exactly is encoded in a tagged form when it is the
// whole value, and refused when it is nested in a composite.
type JSONCodec struct {
	types map[string]reflect.Type
}

var jsonPredeclared = []reflect.Type{
	contract.TypeOf[bool](),
	contract.TypeOf[int](), contract.TypeOf[int8](), contract.TypeOf[int16](), contract.TypeOf[int32](), contract.TypeOf[int64](),
	contract.TypeOf[uint](), contract.TypeOf[uint8](), contract.TypeOf[uint16](), contract.TypeOf[uint32](), contract.TypeOf[uint64](), contract.TypeOf[uintptr](),
	contract.TypeOf[float32](), contract.TypeOf[float64](),
	contract.TypeOf[string](),
}

func NewJSONCodec(types *contract.TypeSet) (Codec, error) {
	c := &JSONCodec{types: make(map[string]reflect.Type)}
	for _, t := range jsonPredeclared {
		c.types[t.String()] = t
	}
	if types != nil {
		for _, t := range types.Types() {
			name := t.String()
			if other, ok := c.types[name]; ok && other != t {
				return nil, errors.Errorf("codec: json type name %q is ambiguous (%v and %v)", name, other, t)
			}
			c.types[name] = t
		}
	}
	return c, nil
}

func (c *JSONCodec) Type() Type {
	return JSONType
}

func (c *JSONCodec) EncodeRequest(req *Request) (string, error) {
	out := jsonRequest{Method: req.Method, Args: make([]jsonValue, len(req.Args))}
	for i, arg := range req.Args {
		v, err := c.encodeValue(arg)
		if err != nil {
			return "", errors.Annotatef(err, "argument %d", i)
		}
		out.Args[i] = v
	}
	return c.marshal(out)
}

func (c *JSONCodec) DecodeRequest(line string) (*Request, error) {
	var in jsonRequest
	if err := c.unmarshal(line, &in); err != nil {
		return nil, err
	}
	req := &Request{Method: in.Method, Args: make([]interface{}, len(in.Args))}
	for i, arg := range in.Args {
		v, err := c.decodeValue(arg)
		if err != nil {
			return nil, errors.Annotatef(err, "argument %d", i)
		}
		req.Args[i] = v
	}
	return req, nil
}

func (c *JSONCodec) EncodeValue(v interface{}) (string, error) {
	if IsNil(v) {
		return NullLine, nil
	}
	value, err := c.encodeValue(v)
	if err != nil {
		return "", err
	}
	return c.marshal(value)
}

func (c *JSONCodec) DecodeValue(line string) (interface{}, error) {
	if line == NullLine {
		return nil, nil
	}
	var value jsonValue
	if err := c.unmarshal(line, &value); err != nil {
		return nil, err
	}
	return c.decodeValue(value)
}

func (c *JSONCodec) encodeValue(v interface{}) (jsonValue, error) {
	if v == nil {
		return jsonValue{}, nil
	}
	t := reflect.TypeOf(v)
	if c.types[t.String()] != t {
		return jsonValue{}, errors.NotValidf("value of unknown type %s", t)
	}
	rv := reflect.ValueOf(v)
	switch t.Kind() {
	case reflect.String:
		if text := rv.String(); !utf8.ValidString(text) {
			return jsonValue{Type: t.String(), Text: base64.StdEncoding.EncodeToString([]byte(text))}, nil
		}
	case reflect.Float32:
		if f := rv.Float(); !exactInJSON(f) {
			bits := uint64(math.Float32bits(float32(f)))
			return jsonValue{Type: t.String(), Bits: &bits}, nil
		}
	case reflect.Float64:
		if f := rv.Float(); !exactInJSON(f) {
			bits := math.Float64bits(f)
			return jsonValue{Type: t.String(), Bits: &bits}, nil
		}
	}
	if err := checkJSONExact(rv, make(map[uintptr]bool)); err != nil {
		return jsonValue{}, errors.Annotatef(err, "json encode %s", t)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return jsonValue{}, errors.Annotatef(err, "json encode %s", t)
	}
	return jsonValue{Type: t.String(), Value: raw}, nil
}

func (c *JSONCodec) decodeValue(v jsonValue) (interface{}, error) {
	if v.Type == "" {
		return nil, nil
	}
	t, ok := c.types[v.Type]
	if !ok {
		return nil, errors.NotValidf("value of unknown type %s", v.Type)
	}
	ptr := reflect.New(t)
	switch {
	case v.Bits != nil:
		switch t.Kind() {
		case reflect.Float32:
			ptr.Elem().SetFloat(float64(math.Float32frombits(uint32(*v.Bits))))
		case reflect.Float64:
			ptr.Elem().SetFloat(math.Float64frombits(*v.Bits))
		default:
			return nil, errors.NotValidf("float bits for %s", t)
		}
	case v.Text != "":
		if t.Kind() != reflect.String {
			return nil, errors.NotValidf("raw text for %s", t)
		}
		text, err := base64.StdEncoding.DecodeString(v.Text)
		if err != nil {
			return nil, errors.Annotatef(err, "json decode %s", t)
		}
		ptr.Elem().SetString(string(text))
	default:
		if err := json.Unmarshal(v.Value, ptr.Interface()); err != nil {
			return nil, errors.Annotatef(err, "json decode %s", t)
		}
	}
	return ptr.Elem().Interface(), nil
}

func exactInJSON(f float64) bool {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}
	return f != 0 || !math.Signbit(f)
}

// checkJSONExact 检查复合值中是否有 JSON 不能原样表示的文本或浮点数
func checkJSONExact(v reflect.Value, seen map[uintptr]bool) error {
	switch v.Kind() {
	case reflect.String:
		if !utf8.ValidString(v.String()) {
			return errors.NotValidf("text %q that is not UTF-8", v.String())
		}
	case reflect.Float32, reflect.Float64:
		if !exactInJSON(v.Float()) {
			return errors.NotValidf("float %v", v.Float())
		}
	case reflect.Ptr:
		if v.IsNil() || seen[v.Pointer()] {
			return nil
		}
		seen[v.Pointer()] = true
		return checkJSONExact(v.Elem(), seen)
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return checkJSONExact(v.Elem(), seen)
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if !v.Type().Field(i).IsExported() {
				continue
			}
			if err := checkJSONExact(v.Field(i), seen); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := checkJSONExact(v.Index(i), seen); err != nil {
				return err
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if err := checkJSONExact(iter.Key(), seen); err != nil {
				return err
			}
			if err := checkJSONExact(iter.Value(), seen); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *JSONCodec) marshal(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", errors.Annotate(err, "json encode")
	}
	return frame(JSONType, string(raw)), nil
}

func (c *JSONCodec) unmarshal(line string, v interface{}) error {
	payload, err := unframe(JSONType, line)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return errors.Annotate(err, "json decode")
	}
	return nil
}
