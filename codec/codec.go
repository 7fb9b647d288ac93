package codec

import (
	"fmt"
	"strconv"

	"github.com/juju/errors"

	"remoting/contract"
)

type Type string

const (
	GobType  Type = "application/gob"
	JSONType Type = "application/json"
)

// Reserved lines. They are compared before any value decoding.
const (
	// NullLine is the response to a call returning nothing or nil.
	NullLine = ""
	// NotFoundLine is the response to a method identity the server does not
	// bind.
	NotFoundLine = "?"
	// StopLine, sent as a request, shuts the server down.
	StopLine = "stop"
)

// 编码器接口，把一个调用请求或一个返回值编码为一行文本
// 编码结果不含换行符，且总是以编码器的标记字母开头
type Codec interface {
	Type() Type
	// EncodeRequest encodes one call request.
	EncodeRequest(req *Request) (string, error)
	// DecodeRequest decodes a line produced by EncodeRequest.
	DecodeRequest(line string) (*Request, error)
	// EncodeValue encodes a result value; nil encodes to NullLine.
	EncodeValue(v interface{}) (string, error)
	// DecodeValue decodes a line produced by EncodeValue, returning the value
	// with its own concrete type.
	DecodeValue(line string) (interface{}, error)
}

// 编码器的构造函数类型，参数为契约的已知类型集合
type NewCodecFunc func(types *contract.TypeSet) (Codec, error)

var NewCodecFuncMap map[Type]NewCodecFunc

// every encoded line starts with its codec's tag, so an encoded line is
// never empty, numeric or equal to a reserved line.
var tags = map[Type]byte{
	GobType:  'g',
	JSONType: 'j',
}

func init() {
	NewCodecFuncMap = make(map[Type]NewCodecFunc)
	NewCodecFuncMap[GobType] = NewGobCodec
	NewCodecFuncMap[JSONType] = NewJSONCodec
}

// New builds the codec registered for t.
func New(t Type, types *contract.TypeSet) (Codec, error) {
	newCodecFunc, ok := NewCodecFuncMap[t]
	if !ok {
		return nil, errors.NotSupportedf("codec type %q", t)
	}
	cc, err := newCodecFunc(types)
	if err != nil {
		return nil, errors.Annotatef(err, "creating %s codec", t)
	}
	return cc, nil
}

// TypeOfLine returns the codec type an encoded line was produced by.
func TypeOfLine(line string) (Type, bool) {
	if line == "" {
		return "", false
	}
	for t, tag := range tags {
		if line[0] == tag {
			return t, true
		}
	}
	return "", false
}

// ParseReference recognizes a response consisting solely of digits: the
// identity of a server-side object.
func ParseReference(line string) (int64, bool) {
	if line == "" {
		return 0, false
	}
	for i := 0; i < len(line); i++ {
		if line[i] < '0' || line[i] > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(line, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// FormatReference renders an object identity as a response line.
func FormatReference(id int64) string {
	return strconv.FormatInt(id, 10)
}

func frame(t Type, payload string) string {
	return string(tags[t]) + payload
}

func unframe(t Type, line string) (string, error) {
	if line == "" || line[0] != tags[t] {
		return "", fmt.Errorf("codec: line is not %s encoded", t)
	}
	return line[1:], nil
}
