package vm

import "github.com/tliron/commonlog"

// Package loggers. Output is controlled by the host through
// commonlog.Configure; nothing is printed until a backend is registered.
var (
	vmLog = commonlog.GetLogger("neon.vm")
	gcLog = commonlog.GetLogger("neon.gc")
)
