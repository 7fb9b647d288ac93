package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/gob"
	"reflect"

	"github.com/juju/errors"
	"github.com/sirupsen/logrus"

	"remoting/contract"
)

// GobCodec 使用 gob 编码，再用 base64 转为单行文本
// 每一行都是独立的 gob 流，包含完整的类型信息
type GobCodec struct{}

func NewGobCodec(types *contract.TypeSet) (Codec, error) {
	registerGobTypes(types)
	return &GobCodec{}, nil
}

// gob 对同一个基础类型只允许注册一个名字，T 和 *T 只注册先出现的那个，
// 解码后由 Conform 转换为声明的类型
func registerGobTypes(types *contract.TypeSet) {
	if types == nil {
		return
	}
	seen := make(map[reflect.Type]bool)
	for _, t := range types.Types() {
		base := t
		for base.Kind() == reflect.Ptr {
			base = base.Elem()
		}
		if seen[base] || t.Kind() == reflect.Interface {
			continue
		}
		seen[base] = true
		registerGob(t)
	}
}

func registerGob(t reflect.Type) {
	defer func() {
		if r := recover(); r != nil {
			// 已经以其他名字注册过，gob 仍然可以编码该类型
			logrus.Debugf("codec: gob register %s: %v", t, r)
		}
	}()
	gob.Register(reflect.Zero(t).Interface())
}

func (c *GobCodec) Type() Type {
	return GobType
}

func (c *GobCodec) EncodeRequest(req *Request) (string, error) {
	return c.encode(req)
}

func (c *GobCodec) DecodeRequest(line string) (*Request, error) {
	var req Request
	if err := c.decode(line, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (c *GobCodec) EncodeValue(v interface{}) (string, error) {
	if IsNil(v) {
		return NullLine, nil
	}
	return c.encode(&valueEnvelope{Value: v})
}

func (c *GobCodec) DecodeValue(line string) (interface{}, error) {
	if line == NullLine {
		return nil, nil
	}
	var envelope valueEnvelope
	if err := c.decode(line, &envelope); err != nil {
		return nil, err
	}
	return envelope.Value, nil
}

func (c *GobCodec) encode(v interface{}) (string, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		logrus.Errorf("codec: gob encode error: %v", err)
		return "", errors.Annotate(err, "gob encode")
	}
	return frame(GobType, base64.StdEncoding.EncodeToString(buf.Bytes())), nil
}

func (c *GobCodec) decode(line string, v interface{}) error {
	payload, err := unframe(GobType, line)
	if err != nil {
		return err
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return errors.Annotate(err, "gob payload")
	}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(v); err != nil {
		return errors.Annotate(err, "gob decode")
	}
	return nil
}
