package library

import (
	"fmt"
	"log"
	"runtime/debug"
	"strconv"
	"strings"
)

// GetURL get url represent of host and port, port is omitted when not positive
func GetURL(host string, port int) string {
	if port <= 0 {
		return host
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// SplitHostPort splits a trailing ":<digits>" port from address.
// The address is returned untouched with port 0 when it has no numeric suffix,
// so "http://relay" keeps its scheme colon and "user:pw@relay:80" splits on the last one.
func SplitHostPort(address string) (string, int) {
	i := strings.LastIndex(address, ":")
	if i < 0 || i == len(address)-1 {
		return address, 0
	}
	port, err := strconv.Atoi(address[i+1:])
	if err != nil || port < 0 {
		return address, 0
	}
	return address[:i], port
}

// StringTags create tag string
func StringTags(tags ...interface{}) string {
	n := len(tags)
	if n == 0 {
		return ""
	}
	format := strings.Repeat("[%s]", n)
	return fmt.Sprintf(format, tags...)
}

// StackTrace returns the stack trace string on single line
func StackTrace() string {
	return strings.Replace(string(debug.Stack()), "\n", " <- ", -1)
}

// Recover will safely recover from any unexpected error panic
func Recover(next func(error)) {
	var err error
	r := recover()
	if r != nil {
		err = fmt.Errorf("unexpected %v", r)
		trace := StackTrace()
		log.Printf("%s >> trace: %s", err, trace)
	}
	if next != nil {
		next(err)
	}
}

// ToString converts anything to string
func ToString(any interface{}) string {
	switch v := any.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case float32, float64:
		return fmt.Sprintf("%.6f", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// RunOptionalFunc runs option functions in order and stops at the first error
func RunOptionalFunc(options ...func() error) error {
	for _, op := range options {
		if op == nil {
			continue
		}
		if err := op(); err != nil {
			return err
		}
	}
	return nil
}
