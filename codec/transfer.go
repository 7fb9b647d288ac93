package codec

// Request is one call: the method identity and its ordered arguments.
type Request struct {
	// 方法的完整标识，格式为 "Contract.Method(参数类型, ...)"
	Method string
	// 按声明顺序排列的参数
	Args []interface{}
}

// 返回值的包装，使编码结果带有具体类型
type valueEnvelope struct {
	Value interface{}
}
