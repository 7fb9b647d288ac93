package logfmt

import (
	"bytes"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

const timeFormat = "2006-01-02 15:04:05.000"

// 不同日志级别使用不同的颜色
var levelColors = map[logrus.Level]*color.Color{
	logrus.TraceLevel: color.New(color.FgWhite),
	logrus.DebugLevel: color.New(color.FgCyan),
	logrus.InfoLevel:  color.New(color.FgGreen),
	logrus.WarnLevel:  color.New(color.FgYellow),
	logrus.ErrorLevel: color.New(color.FgRed),
	logrus.FatalLevel: color.New(color.FgRed, color.Bold),
	logrus.PanicLevel: color.New(color.FgRed, color.Bold),
}

// MyFormatter 输出一行：时间 级别 [文件:行号] 消息 字段
type MyFormatter struct {
	// NoColor 关闭颜色，color.NoColor 为 true 时也不输出颜色
	NoColor bool
}

func (f *MyFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}
	level := strings.ToUpper(entry.Level.String())
	if len(level) > 4 {
		level = level[:4]
	}
	if c, ok := levelColors[entry.Level]; ok && !f.NoColor && !color.NoColor {
		level = c.Sprint(level)
	}
	fmt.Fprintf(b, "%s %s ", entry.Time.Format(timeFormat), level)
	if entry.HasCaller() {
		fmt.Fprintf(b, "[%s:%d] ", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}
