package errors

// Fatal codes.
var (
	ConnectionFailed        = define(1001, Fatal, "connection to simulator failed: %s")
	TransportClosed         = define(1002, Fatal, "transport %s is closed")
	ProtocolDesync          = define(1003, Fatal, "protocol desynchronized in %s")
	VersionMismatch         = define(1004, Fatal, "simulator version %q does not match accepted pattern %q")
	LibraryLoad             = define(1005, Fatal, "%s")
	NativeCrash             = define(1006, Fatal, "native call %s crashed: %v")
	ConfigurationError      = define(1007, Fatal, "configuration error: %s")
	TimeoutError            = define(1008, Fatal, "operation %s timed out")
	TransportAlreadyRunning = define(1009, Fatal, "transport %s is already running")
	TransportNotRunning     = define(1010, Fatal, "transport %s is not running")
	UnknownCommand          = define(1011, Fatal, "no implementation of %s for backend %s")
	ProcessFailed           = define(1012, Fatal, "simulator process %s: %s")
)

// Recoverable codes.
var (
	CommandFailed      = define(2001, Recoverable, "command %s failed: %s")
	NotSupported       = define(2002, Recoverable, "command %s not supported at negotiated version %s")
	InvalidArgument    = define(2003, Recoverable, "invalid argument: %s")
	PublishFailed      = define(2004, Recoverable, "publish to %s failed")
	SubscriptionFailed = define(2005, Recoverable, "subscription to %s failed")
	ClientNotConnected = define(2006, Recoverable, "client %s is not connected")
	IdentifierConflict = define(2007, Recoverable, "identifier mapping failed: %s")
	Canceled           = define(2008, Recoverable, "%s canceled before it started")
)
