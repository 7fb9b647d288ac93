package remoting

import "github.com/sirupsen/logrus"

// Phase is the lifecycle stage of a server.
type Phase int

const (
	ReflectionStarted Phase = iota
	ReflectionComplete
	Started
	StopRequested
	Stopped
	// Failed is terminal: construction or one of the server loops failed.
	Failed
)

func (p Phase) String() string {
	switch p {
	case ReflectionStarted:
		return "reflection started"
	case ReflectionComplete:
		return "reflection complete"
	case Started:
		return "started"
	case StopRequested:
		return "stop requested"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Observer receives server lifecycle notifications. Calls come from the
// server goroutines, never while the client list is locked.
type Observer interface {
	// Connected is called after a client joined, with the new client count.
	Connected(clients int)
	// Disconnected is called after a client was dropped.
	Disconnected(clients int)
	PhaseChanged(p Phase)
}

// 默认的观察者，只打印日志
type logObserver struct{}

func (logObserver) Connected(clients int) {
	logrus.Infof("remoting server: client connected, %d connected", clients)
}

func (logObserver) Disconnected(clients int) {
	logrus.Infof("remoting server: client disconnected, %d connected", clients)
}

func (logObserver) PhaseChanged(p Phase) {
	if p == Failed {
		logrus.Errorf("remoting server: %s", p)
		return
	}
	logrus.Infof("remoting server: %s", p)
}
