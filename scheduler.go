package remoting

import (
	"bufio"
	"math"
	"net"
)

// 服务计数的上限，最小计数超过它的一半时所有计数减去最小值
const maxServiceCount = math.MaxInt32

// 服务端持有的一个客户端连接
type clientWrapper struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	// 已为该客户端完成的请求数
	serviceCount int
}

func newClientWrapper(conn net.Conn, serviceCount int) *clientWrapper {
	return &clientWrapper{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		writer:       bufio.NewWriter(conn),
		serviceCount: serviceCount,
	}
}

// chooseNext returns the index of the client to serve next, -1 for an
// empty list. A client never served goes first; otherwise the least served
// client wins, the lowest index on ties. Counts are renormalized in place
// before they can overflow.
func chooseNext(clients []*clientWrapper) int {
	if len(clients) == 0 {
		return -1
	}
	next := 0
	for i, c := range clients {
		if c.serviceCount < 1 {
			return i
		}
		if c.serviceCount < clients[next].serviceCount {
			next = i
		}
	}
	if min := clients[next].serviceCount; min > maxServiceCount/2 {
		for _, c := range clients {
			c.serviceCount -= min
		}
	}
	return next
}

// 新加入的客户端从当前的最小计数开始，避免它长期独占调度
func startingCount(clients []*clientWrapper) int {
	if len(clients) == 0 {
		return 0
	}
	min := clients[0].serviceCount
	for _, c := range clients[1:] {
		if c.serviceCount < min {
			min = c.serviceCount
		}
	}
	return min
}
